// Package metadata is the embedded-database collaborator used for tagging
// and search. It is never authoritative for upload correctness: every
// failure here is logged by the caller and the upload proceeds.
package metadata

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// fileRecord is the persisted row. Tags and custom fields are stored as
// JSON text; the search surface is tag/substring matching, so no separate
// join tables are needed.
type fileRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Path         string `gorm:"uniqueIndex;not null"`
	FileName     string `gorm:"index"`
	Tags         string
	CustomFields string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// Store implements types.MetadataStore over a single SQLite file.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the database at dbPath and migrates the
// schema.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseUnavailable, "failed to open metadata database", err).
			WithComponent("metadata").WithContext("path", dbPath)
	}

	if err := db.AutoMigrate(&fileRecord{}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseUnavailable, "failed to migrate metadata schema", err).
			WithComponent("metadata")
	}

	return &Store{db: db, logger: logger.With("component", "metadata")}, nil
}

// CreateFileMetadata assembles a FileMetadata record without persisting
// it. Persisting is SaveFileMetadata's job so callers can enrich the
// record in between.
func (s *Store) CreateFileMetadata(_ context.Context, path string, tags []string, customFields map[string]string) (types.FileMetadata, error) {
	if path == "" {
		return types.FileMetadata{}, errors.New(errors.ErrCodeFilePathResolution, "metadata path must not be empty").
			WithComponent("metadata")
	}
	if customFields == nil {
		customFields = make(map[string]string)
	}
	return types.FileMetadata{
		Path:         path,
		Tags:         append([]string(nil), tags...),
		CustomFields: customFields,
	}, nil
}

// SaveFileMetadata upserts the record keyed by path.
func (s *Store) SaveFileMetadata(ctx context.Context, meta types.FileMetadata) error {
	tags, err := json.Marshal(meta.Tags)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseWrite, "failed to encode tags", err).WithComponent("metadata")
	}
	fields, err := json.Marshal(meta.CustomFields)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDatabaseWrite, "failed to encode custom fields", err).WithComponent("metadata")
	}

	record := fileRecord{
		Path:         meta.Path,
		FileName:     filepath.Base(meta.Path),
		Tags:         string(tags),
		CustomFields: string(fields),
	}

	result := s.db.WithContext(ctx).
		Where(fileRecord{Path: meta.Path}).
		Assign(map[string]any{
			"file_name":     record.FileName,
			"tags":          record.Tags,
			"custom_fields": record.CustomFields,
		}).
		FirstOrCreate(&record)
	if result.Error != nil {
		return errors.Wrap(errors.ErrCodeDatabaseWrite, "failed to save metadata", result.Error).
			WithComponent("metadata").WithContext("path", meta.Path)
	}
	return nil
}

// SearchMetadata returns records whose file name or tag list contains
// query, case-insensitively. Soft-deleted records never match.
func (s *Store) SearchMetadata(ctx context.Context, query string) ([]types.FileMetadata, error) {
	like := "%" + strings.ToLower(query) + "%"

	var records []fileRecord
	result := s.db.WithContext(ctx).
		Where("LOWER(file_name) LIKE ? OR LOWER(tags) LIKE ?", like, like).
		Order("path").
		Find(&records)
	if result.Error != nil {
		return nil, errors.Wrap(errors.ErrCodeDatabaseUnavailable, "metadata search failed", result.Error).
			WithComponent("metadata")
	}

	out := make([]types.FileMetadata, 0, len(records))
	for _, r := range records {
		meta, err := r.toFileMetadata()
		if err != nil {
			s.logger.Warn("skipping undecodable metadata row", "path", r.Path, "error", err)
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

// DeleteFileMetadata soft-deletes the record for path. Deleting a path
// with no record is a no-op.
func (s *Store) DeleteFileMetadata(ctx context.Context, path string) error {
	result := s.db.WithContext(ctx).Where("path = ?", path).Delete(&fileRecord{})
	if result.Error != nil {
		return errors.Wrap(errors.ErrCodeDatabaseWrite, "failed to delete metadata", result.Error).
			WithComponent("metadata").WithContext("path", path)
	}
	return nil
}

func (r fileRecord) toFileMetadata() (types.FileMetadata, error) {
	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return types.FileMetadata{}, err
		}
	}
	fields := make(map[string]string)
	if r.CustomFields != "" {
		if err := json.Unmarshal([]byte(r.CustomFields), &fields); err != nil {
			return types.FileMetadata{}, err
		}
	}
	return types.FileMetadata{Path: r.Path, Tags: tags, CustomFields: fields}, nil
}
