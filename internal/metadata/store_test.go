package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "metadata.db"), nil)
	require.NoError(t, err)
	return store
}

func TestSaveAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.CreateFileMetadata(ctx, "/home/u/videos/clip.mp4",
		[]string{"auto-detected", "ext-mp4"},
		map[string]string{"auto_detected": "true"})
	require.NoError(t, err)
	require.NoError(t, store.SaveFileMetadata(ctx, meta))

	results, err := store.SearchMetadata(ctx, "clip")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/home/u/videos/clip.mp4", results[0].Path)
	assert.Contains(t, results[0].Tags, "ext-mp4")
	assert.Equal(t, "true", results[0].CustomFields["auto_detected"])
}

func TestSearchByTag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.CreateFileMetadata(ctx, "/home/u/raw/footage.mov", []string{"dir-raw"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveFileMetadata(ctx, meta))

	results, err := store.SearchMetadata(ctx, "dir-raw")
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = store.SearchMetadata(ctx, "no-such-tag")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateFileMetadata(ctx, "/home/u/a.mp4", []string{"v1"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveFileMetadata(ctx, first))

	second, err := store.CreateFileMetadata(ctx, "/home/u/a.mp4", []string{"v2"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveFileMetadata(ctx, second))

	results, err := store.SearchMetadata(ctx, "a.mp4")
	require.NoError(t, err)
	require.Len(t, results, 1, "upsert must not create a second row")
	assert.Equal(t, []string{"v2"}, results[0].Tags)
}

func TestDeleteIsSoft(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	meta, err := store.CreateFileMetadata(ctx, "/home/u/gone.mp4", []string{"x"}, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveFileMetadata(ctx, meta))

	require.NoError(t, store.DeleteFileMetadata(ctx, "/home/u/gone.mp4"))

	results, err := store.SearchMetadata(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, results, "soft-deleted records must not match searches")

	require.NoError(t, store.DeleteFileMetadata(ctx, "/home/u/never-existed.mp4"))
}

func TestCreateRejectsEmptyPath(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateFileMetadata(context.Background(), "", nil, nil)
	require.Error(t, err)
}
