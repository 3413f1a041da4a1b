package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

type recordingEnqueuer struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingEnqueuer) Enqueue(localPath string, size int64) (*types.UploadItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, localPath)
	return &types.UploadItem{ID: "test", LocalPath: localPath, Size: size}, nil
}

func (r *recordingEnqueuer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.mp4", "clip.mp4", true},
		{"*.mp4", "CLIP.MP4", true},
		{"*.mp4", "clip.mov", false},
		{"clip*", "clip-final.mov", true},
		{"clip*final", "clip-final", true},
		{"clip*final", "clip-final-v2", false},
		{"*render*", "final-render-v2.mov", true},
		{"notes.txt", "notes.txt", true},
		{"notes.txt", "other.txt", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.name), "pattern %q against %q", tt.pattern, tt.name)
	}
}

func newTestWatcher(t *testing.T, cfg types.WatchConfig, home string) *Watcher {
	t.Helper()
	w, err := New(cfg, home, nil, nil, nil)
	require.NoError(t, err)
	return w
}

func TestAdmitFilterChain(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, "videos")
	require.NoError(t, os.MkdirAll(root, 0o755))

	w := newTestWatcher(t, types.WatchConfig{
		RootPath:        root,
		IncludePatterns: []string{"*.mp4", "*.mov"},
		ExcludePatterns: []string{"*.tmp", "draft*"},
		ExcludeDirs:     []string{"node_modules"},
		MaxFileSizeMB:   1,
	}, home)

	assert.True(t, w.Admit(filepath.Join(root, "a.mp4"), 100))
	assert.True(t, w.Admit(filepath.Join(root, "b.MOV"), 100))
	assert.False(t, w.Admit(filepath.Join(root, "c.txt"), 100), "not in include list")
	assert.False(t, w.Admit(filepath.Join(root, "d.tmp"), 100), "excluded pattern")
	assert.False(t, w.Admit(filepath.Join(root, "draft-cut.mp4"), 100), "excluded prefix pattern")
	assert.False(t, w.Admit(filepath.Join(root, "node_modules", "e.mp4"), 100), "excluded directory")
	assert.False(t, w.Admit(filepath.Join(root, "big.mp4"), 2*1024*1024), "over size cap")
}

func TestEmptyIncludeListAdmitsEverythingNotExcluded(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, "drop")
	require.NoError(t, os.MkdirAll(root, 0o755))

	w := newTestWatcher(t, types.WatchConfig{RootPath: root, ExcludePatterns: []string{"*.part"}}, home)

	assert.True(t, w.Admit(filepath.Join(root, "anything.bin"), 10))
	assert.False(t, w.Admit(filepath.Join(root, "partial.part"), 10))
}

func TestRootOutsideHomeRejected(t *testing.T) {
	home := t.TempDir()
	outside := t.TempDir()

	_, err := New(types.WatchConfig{RootPath: outside}, home, nil, nil, nil)
	require.Error(t, err)
}

func TestAutoMetadataTags(t *testing.T) {
	tags, fields := AutoMetadata("/home/u/videos/clip.MP4", "/home/u/videos")

	assert.Contains(t, tags, "auto-detected")
	assert.Contains(t, tags, "ext-mp4")
	assert.Contains(t, tags, "dir-videos")
	assert.Equal(t, "true", fields["auto_detected"])
	assert.Equal(t, "/home/u/videos", fields["watch_path"])
}

func TestWatcherEnqueuesCreatedFile(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, "inbox")
	require.NoError(t, os.MkdirAll(root, 0o755))

	enq := &recordingEnqueuer{}
	w, err := New(types.WatchConfig{
		RootPath:        root,
		IncludePatterns: []string{"*.mp4"},
		AutoUpload:      true,
	}, home, enq, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(root, "new.mp4")
	require.NoError(t, os.WriteFile(path, []byte("frame data"), 0o644))

	require.Eventually(t, func() bool {
		return len(enq.snapshot()) >= 1
	}, 3*time.Second, 10*time.Millisecond, "watched file was never enqueued")

	assert.Contains(t, enq.snapshot(), path)
}

func TestWatcherIgnoresNonMatchingFile(t *testing.T) {
	home := t.TempDir()
	root := filepath.Join(home, "inbox")
	require.NoError(t, os.MkdirAll(root, 0o755))

	enq := &recordingEnqueuer{}
	w, err := New(types.WatchConfig{
		RootPath:        root,
		IncludePatterns: []string{"*.mp4"},
		AutoUpload:      true,
	}, home, enq, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, enq.snapshot())
}
