package upload

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// GenerateKey produces a POSIX-style object key by concatenating, in
// order, the non-empty of: prefix (trailing slash stripped), YYYY/MM/DD
// when UseDateFolder, the path's parent relative to the user's home when
// PreserveDirectoryStructure, and the file name — or, when
// CustomNamingPattern is set, its expansion with {filename}, {timestamp},
// and {uuid} placeholders in place of the file name. This is a pure
// function of (path, cfg, clock); {uuid} is the only nondeterministic
// output.
func GenerateKey(localPath string, cfg types.S3KeyConfig, clock func() time.Time) string {
	if clock == nil {
		clock = time.Now
	}

	fileName := filepath.Base(localPath)
	name := fileName
	if cfg.CustomNamingPattern != "" {
		name = expandNamingPattern(cfg.CustomNamingPattern, fileName, clock())
	}

	var segments []string
	if prefix := strings.TrimSuffix(cfg.Prefix, "/"); prefix != "" {
		segments = append(segments, prefix)
	}
	if cfg.UseDateFolder {
		segments = append(segments, clock().Format("2006/01/02"))
	}
	if cfg.PreserveDirectoryStructure && cfg.HomeDir != "" {
		if rel, err := filepath.Rel(cfg.HomeDir, filepath.Dir(localPath)); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			segments = append(segments, filepath.ToSlash(rel))
		}
	}
	segments = append(segments, name)

	return strings.Join(segments, "/")
}

func expandNamingPattern(pattern, fileName string, now time.Time) string {
	replacer := strings.NewReplacer(
		"{filename}", fileName,
		"{timestamp}", strconv.FormatInt(now.Unix(), 10),
		"{uuid}", uuid.NewString(),
	)
	result := replacer.Replace(pattern)
	if result == "" {
		return fmt.Sprintf("%s-%d", fileName, now.Unix())
	}
	return result
}
