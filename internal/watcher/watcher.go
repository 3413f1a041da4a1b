// Package watcher observes configured directories, applies glob-style
// include/exclude rules and size caps, and feeds qualifying files into the
// upload engine with auto-tagged metadata. The watcher is advisory:
// missed events are acceptable, and double-delivery is handled by the
// queue.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// Enqueuer is the slice of the upload engine the watcher needs: hand over
// a qualifying file and its size.
type Enqueuer interface {
	Enqueue(localPath string, size int64) (*types.UploadItem, error)
}

// Watcher bridges fsnotify's background delivery thread into the engine's
// task world. One Watcher covers one watch root.
type Watcher struct {
	cfg      types.WatchConfig
	enqueuer Enqueuer
	metadata types.MetadataStore
	homeDir  string
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New validates and canonicalizes cfg.RootPath and constructs a Watcher.
// The root must resolve inside homeDir; anything else is rejected with a
// File error. metadata may be nil when auto-tagging is off.
func New(cfg types.WatchConfig, homeDir string, enqueuer Enqueuer, metadata types.MetadataStore, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root, err := canonicalizeRoot(cfg.RootPath, homeDir)
	if err != nil {
		return nil, err
	}
	cfg.RootPath = root

	return &Watcher{
		cfg:      cfg,
		enqueuer: enqueuer,
		metadata: metadata,
		homeDir:  homeDir,
		logger:   logger.With("component", "watcher", "root", root),
		done:     make(chan struct{}),
	}, nil
}

// canonicalizeRoot resolves symlinks and relative segments, then rejects
// roots outside the user's home directory.
func canonicalizeRoot(root, homeDir string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFilePathResolution, "failed to resolve watch root", err).
			WithComponent("watcher").WithContext("root", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFilePathResolution, "failed to canonicalize watch root", err).
			WithComponent("watcher").WithContext("root", abs)
	}

	home, err := filepath.EvalSymlinks(homeDir)
	if err != nil {
		home = homeDir
	}
	rel, err := filepath.Rel(home, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodeFileOutsideHome, "watch root resolves outside the user's home directory").
			WithComponent("watcher").WithContext("root", resolved)
	}
	return resolved, nil
}

// Start subscribes to filesystem events on the root and runs the
// admission filter until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.ErrCodeFilePathResolution, "failed to create filesystem watcher", err).
			WithComponent("watcher")
	}
	w.fsw = fsw

	if err := w.addRoots(); err != nil {
		fsw.Close()
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop ends event delivery. Safe to call once after Start.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) addRoots() error {
	if err := w.fsw.Add(w.cfg.RootPath); err != nil {
		return errors.Wrap(errors.ErrCodeFilePathResolution, "failed to watch root", err).
			WithComponent("watcher")
	}
	if !w.cfg.Recursive {
		return nil
	}

	return filepath.WalkDir(w.cfg.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == w.cfg.RootPath {
			return nil
		}
		if inExcludedDir(w.cfg.ExcludeDirs, path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("failed to watch subdirectory", "path", path, "error", addErr)
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

// handleEvent applies the admission filter to one create/modify event.
// Other event kinds are ignored.
func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		w.logger.Debug("stat failed on event path, skipping", "path", ev.Name, "error", err)
		return
	}

	if info.IsDir() {
		if w.cfg.Recursive && ev.Has(fsnotify.Create) && !inExcludedDir(w.cfg.ExcludeDirs, ev.Name) {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.logger.Warn("failed to watch new subdirectory", "path", ev.Name, "error", err)
			}
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	if !w.Admit(ev.Name, info.Size()) {
		return
	}

	if w.cfg.AutoMetadata && w.metadata != nil {
		w.tagFile(ctx, ev.Name)
	}

	if w.cfg.AutoUpload && w.enqueuer != nil {
		if _, err := w.enqueuer.Enqueue(ev.Name, info.Size()); err != nil {
			w.logger.Warn("enqueue rejected watched file", "path", ev.Name, "error", err)
			return
		}
		w.logger.Info("enqueued watched file", "path", ev.Name, "size", info.Size())
	}
}

// Admit runs the filter chain on one regular file: exclude-directory
// check, exclude patterns, include patterns, then the size cap. An empty
// include list admits everything not otherwise excluded.
func (w *Watcher) Admit(path string, size int64) bool {
	if inExcludedDir(w.cfg.ExcludeDirs, path) {
		return false
	}

	name := filepath.Base(path)
	if matchAny(w.cfg.ExcludePatterns, name) {
		return false
	}
	if len(w.cfg.IncludePatterns) > 0 && !matchAny(w.cfg.IncludePatterns, name) {
		return false
	}

	if w.cfg.MaxFileSizeMB > 0 && size > w.cfg.MaxFileSizeMB*1024*1024 {
		w.logger.Warn("file exceeds size cap, skipping",
			"path", path, "size", size, "cap_mb", w.cfg.MaxFileSizeMB)
		return false
	}
	return true
}

// tagFile computes the auto-metadata tag set and hands it to the metadata
// collaborator. Failures are logged and never affect the upload.
func (w *Watcher) tagFile(ctx context.Context, path string) {
	tags, fields := AutoMetadata(path, w.cfg.RootPath)

	meta, err := w.metadata.CreateFileMetadata(ctx, path, tags, fields)
	if err != nil {
		w.logger.Warn("failed to create auto metadata", "path", path, "error", err)
		return
	}
	if err := w.metadata.SaveFileMetadata(ctx, meta); err != nil {
		w.logger.Warn("failed to save auto metadata", "path", path, "error", err)
	}
}

// AutoMetadata derives the watcher's tag set and custom fields for one
// admitted file.
func AutoMetadata(path, watchPath string) (tags []string, fields map[string]string) {
	tags = []string{"auto-detected"}
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext != "" {
		tags = append(tags, "ext-"+ext)
	}
	if parent := filepath.Base(filepath.Dir(path)); parent != "" && parent != "." && parent != string(filepath.Separator) {
		tags = append(tags, "dir-"+parent)
	}

	fields = map[string]string{
		"auto_detected": "true",
		"watch_path":    watchPath,
	}
	return tags, fields
}
