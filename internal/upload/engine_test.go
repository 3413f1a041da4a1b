package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
	s3store "github.com/civictech-tv/reelvault-core/internal/storage/s3"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// instrumentedStore wraps the in-memory store, counting facade calls and
// optionally injecting per-part failures.
type instrumentedStore struct {
	types.ObjectStore

	mu             sync.Mutex
	putCalls       int
	createCalls    int
	abortCalls     int
	completeCalls  int
	partNumbers    []int32
	completedParts [][]types.UploadedPart
	failPart       func(partNumber int32) error
	partDelay      time.Duration
}

func (s *instrumentedStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	s.mu.Lock()
	s.putCalls++
	s.mu.Unlock()
	return s.ObjectStore.PutObject(ctx, bucket, key, body, size)
}

func (s *instrumentedStore) CreateMultipartUpload(ctx context.Context, bucket, key string) (string, error) {
	s.mu.Lock()
	s.createCalls++
	s.mu.Unlock()
	return s.ObjectStore.CreateMultipartUpload(ctx, bucket, key)
}

func (s *instrumentedStore) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	s.mu.Lock()
	fail := s.failPart
	delay := s.partDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if fail != nil {
		if err := fail(partNumber); err != nil {
			return "", err
		}
	}

	s.mu.Lock()
	s.partNumbers = append(s.partNumbers, partNumber)
	s.mu.Unlock()
	return s.ObjectStore.UploadPart(ctx, bucket, key, uploadID, partNumber, body, size)
}

func (s *instrumentedStore) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []types.UploadedPart) error {
	s.mu.Lock()
	s.completeCalls++
	s.completedParts = append(s.completedParts, append([]types.UploadedPart(nil), parts...))
	s.mu.Unlock()
	return s.ObjectStore.CompleteMultipartUpload(ctx, bucket, key, uploadID, parts)
}

func (s *instrumentedStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	s.mu.Lock()
	s.abortCalls++
	s.mu.Unlock()
	return s.ObjectStore.AbortMultipartUpload(ctx, bucket, key, uploadID)
}

func (s *instrumentedStore) counts() (put, create, complete, abort int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCalls, s.createCalls, s.completeCalls, s.abortCalls
}

// recordingSink captures every published event for assertions.
type recordingSink struct {
	mu       sync.Mutex
	progress []types.Progress
	tests    []string
}

func (r *recordingSink) PublishUploadProgress(p types.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingSink) PublishTestEvent(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests = append(r.tests, message)
}

func (r *recordingSink) PublishRestoreNotification(types.RestoreNotification) {}

func (r *recordingSink) progressFor(itemID string) []types.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Progress
	for _, p := range r.progress {
		if p.ItemID == itemID {
			out = append(out, p)
		}
	}
	return out
}

func premiumConfig() types.UploadConfig {
	return types.UploadConfig{
		Bucket:               "vault",
		MaxConcurrentUploads: 2,
		ChunkSizeMB:          5,
		MaxConcurrentParts:   2,
		RetryAttempts:        3,
		TimeoutSeconds:       30,
		Tier:                 types.TierPremium,
	}
}

func newTestEngine(t *testing.T, cfg types.UploadConfig, installRule bool) (*Engine, *instrumentedStore, *recordingSink) {
	t.Helper()

	mem := s3store.NewMemoryStore(0)
	mem.CreateBucket("vault")
	store := &instrumentedStore{ObjectStore: mem}
	ctrl := lifecycle.New(store, "vault", nil)
	if installRule {
		require.NoError(t, ctrl.EnableDefaultRule(context.Background()))
	}

	sink := &recordingSink{}
	engine := NewEngine(store, "vault", cfg, types.S3KeyConfig{Prefix: "uploads/"}, ctrl, sink, nil, nil, nil)
	return engine, store, sink
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("file-%d.bin", size))
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func waitForStatus(t *testing.T, e *Engine, id string, want types.UploadStatus) types.UploadItem {
	t.Helper()
	var got types.UploadItem
	require.Eventually(t, func() bool {
		item, ok := e.Queue().Get(id)
		if !ok {
			return false
		}
		got = item
		return item.Status == want
	}, 10*time.Second, 20*time.Millisecond, "item %s never reached status %s", id, want)
	return got
}

func TestSmallFileSinglePut(t *testing.T) {
	engine, store, sink := newTestEngine(t, premiumConfig(), true)
	path := writeTempFile(t, 18)

	item, err := engine.Enqueue(path, 18)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	waitForStatus(t, engine, item.ID, types.UploadCompleted)

	put, create, complete, abort := store.counts()
	assert.Equal(t, 1, put, "exactly one put_object call")
	assert.Zero(t, create, "no multipart calls for a small file")
	assert.Zero(t, complete)
	assert.Zero(t, abort)

	require.Eventually(t, func() bool {
		events := sink.progressFor(item.ID)
		return len(events) > 0 && events[len(events)-1].Status == types.UploadCompleted
	}, 5*time.Second, 20*time.Millisecond)

	events := sink.progressFor(item.ID)
	terminal := events[len(events)-1]
	assert.InDelta(t, 100.0, terminal.Percentage, 0.001)
	assert.Equal(t, int64(18), terminal.UploadedBytes)
	assert.Equal(t, int64(18), terminal.TotalBytes)
}

func TestBelowMinimumChunkIsRaised(t *testing.T) {
	cfg := premiumConfig()
	cfg.ChunkSizeMB = 1 // below the 5 MB protocol minimum
	engine, store, _ := newTestEngine(t, cfg, true)

	const size = 20 * 1024 * 1024
	path := writeTempFile(t, size)

	item, err := engine.Enqueue(path, size)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	waitForStatus(t, engine, item.ID, types.UploadCompleted)

	store.mu.Lock()
	parts := append([]int32(nil), store.partNumbers...)
	store.mu.Unlock()
	assert.Len(t, parts, 4, "20 MB at the raised 5 MB chunk = 4 parts")
}

func TestMultipartHappyPath(t *testing.T) {
	cfg := premiumConfig()
	cfg.ChunkSizeMB = 10
	engine, store, sink := newTestEngine(t, cfg, true)

	const size = 30 * 1024 * 1024
	path := writeTempFile(t, size)

	item, err := engine.Enqueue(path, size)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	waitForStatus(t, engine, item.ID, types.UploadCompleted)

	_, create, complete, abort := store.counts()
	assert.Equal(t, 1, create)
	assert.Equal(t, 1, complete)
	assert.Zero(t, abort)

	store.mu.Lock()
	require.Len(t, store.completedParts, 1)
	completed := store.completedParts[0]
	store.mu.Unlock()

	require.Len(t, completed, 3)
	for i, part := range completed {
		assert.Equal(t, int32(i+1), part.PartNumber, "parts must arrive sorted with no gaps")
		assert.NotEmpty(t, part.ETag)
	}

	// Progress monotonicity: uploaded_bytes never decreases, and the
	// final event carries the full size.
	events := sink.progressFor(item.ID)
	require.NotEmpty(t, events)
	var prev int64
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.UploadedBytes, prev)
		prev = ev.UploadedBytes
	}
	assert.Equal(t, int64(size), events[len(events)-1].UploadedBytes)
}

func TestMultipartAbortOnPartFailure(t *testing.T) {
	cfg := premiumConfig()
	cfg.ChunkSizeMB = 5
	cfg.MaxConcurrentParts = 1
	engine, store, _ := newTestEngine(t, cfg, true)

	store.failPart = func(partNumber int32) error {
		if partNumber == 2 {
			return fmt.Errorf("injected permanent failure on part 2")
		}
		return nil
	}

	const size = 12 * 1024 * 1024
	path := writeTempFile(t, size)

	item, err := engine.Enqueue(path, size)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	got := waitForStatus(t, engine, item.ID, types.UploadFailed)
	assert.NotEmpty(t, got.LastError)

	_, _, complete, abort := store.counts()
	assert.Equal(t, 1, abort, "abort_multipart_upload must be called exactly once")
	assert.Zero(t, complete)

	require.Eventually(t, func() bool {
		return engine.Queue().EffectiveActive() == 0
	}, 5*time.Second, 20*time.Millisecond, "active count must be released exactly once")
}

func TestFreeTierRejectsEnqueueWhilePending(t *testing.T) {
	cfg := types.UploadConfig{
		Bucket:               "vault",
		MaxConcurrentUploads: 1,
		ChunkSizeMB:          5,
		MaxConcurrentParts:   1,
		RetryAttempts:        3,
		Tier:                 types.TierFree,
	}
	engine, _, _ := newTestEngine(t, cfg, true)

	first := writeTempFile(t, 10)
	second := writeTempFile(t, 20)

	_, err := engine.Enqueue(first, 10)
	require.NoError(t, err)

	_, err = engine.Enqueue(second, 20)
	require.Error(t, err)
	assert.Len(t, engine.Queue().Items(), 1)
}

func TestLifecycleGateBlocksUploads(t *testing.T) {
	engine, store, _ := newTestEngine(t, premiumConfig(), false)
	path := writeTempFile(t, 18)

	item, err := engine.Enqueue(path, 18)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	time.Sleep(400 * time.Millisecond)

	got, ok := engine.Queue().Get(item.ID)
	require.True(t, ok)
	assert.Equal(t, types.UploadPending, got.Status, "no item may start while upload_readiness is unsafe")

	put, create, _, _ := store.counts()
	assert.Zero(t, put)
	assert.Zero(t, create)
}

func TestStopPausesInFlightItems(t *testing.T) {
	cfg := premiumConfig()
	engine, store, _ := newTestEngine(t, cfg, true)
	store.partDelay = 50 * time.Millisecond

	// Slow parts keep the upload in flight long enough for Stop to land.
	const size = 40 * 1024 * 1024
	path := writeTempFile(t, size)

	item, err := engine.Enqueue(path, size)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	waitForStatus(t, engine, item.ID, types.UploadInProgress)
	engine.Stop()

	got, ok := engine.Queue().Get(item.ID)
	require.True(t, ok)
	assert.Contains(t, []types.UploadStatus{types.UploadPaused, types.UploadCompleted}, got.Status,
		"stop transitions in-flight items to Paused unless they already finished")
}

func TestProcessorEmitsTestEvent(t *testing.T) {
	engine, _, sink := newTestEngine(t, premiumConfig(), true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	sink.mu.Lock()
	events := len(sink.tests)
	sink.mu.Unlock()
	assert.Equal(t, 1, events, "the processor emits one test-event breadcrumb at start")
}

func TestConcurrencyCapHolds(t *testing.T) {
	cfg := premiumConfig()
	cfg.MaxConcurrentUploads = 2
	engine, _, _ := newTestEngine(t, cfg, true)

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		path := writeTempFile(t, 6*1024*1024+i)
		item, err := engine.Enqueue(path, int64(6*1024*1024+i))
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)
	defer engine.Stop()

	stop := make(chan struct{})
	var monitor sync.WaitGroup
	monitor.Add(1)
	go func() {
		defer monitor.Done()
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
			inProgress := 0
			for _, item := range engine.Queue().Items() {
				if item.Status == types.UploadInProgress {
					inProgress++
				}
			}
			if inProgress > cfg.MaxConcurrentUploads {
				t.Errorf("observed %d items InProgress, cap is %d", inProgress, cfg.MaxConcurrentUploads)
				return
			}
		}
	}()

	for _, id := range ids {
		waitForStatus(t, engine, id, types.UploadCompleted)
	}
	close(stop)
	monitor.Wait()
}
