// Package upload implements the upload engine: queue, admission control,
// per-file state machine, single-PUT and multipart upload paths, progress
// accounting, retries, and cleanup.
package upload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
	"github.com/civictech-tv/reelvault-core/internal/metrics"
	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/retry"
	"github.com/civictech-tv/reelvault-core/pkg/types"

	"github.com/google/uuid"
)

// minChunkBytes is the 5 MB lower bound the multipart protocol enforces
// on every part but the last.
const minChunkBytes = 5 * 1024 * 1024

// progressChannelCapacity sizes the internal progress channel so
// interim backpressure never forces a terminal event to be dropped.
const progressChannelCapacity = 100

// Engine drives admission and per-file processing against a Queue, an
// object store facade, and the lifecycle upload-readiness gate.
type Engine struct {
	queue      *Queue
	store      types.ObjectStore
	lifecycle  *lifecycle.Controller
	sink       types.EventSink
	metrics    *metrics.Collector
	logger     *slog.Logger
	keyConfig  types.S3KeyConfig
	cfg        types.UploadConfig
	bucket     string

	credentialsAvailable func() bool

	// retryStats aggregates every retry sequence across single-PUT,
	// per-part, and completion retryers for the status surface.
	retryStats *retry.StatsCollector

	mu           sync.Mutex
	isProcessing bool
	progressCh   chan types.Progress
	stopCh       chan struct{}

	// loopWG tracks the supervisor and progress-drain goroutines; Stop
	// waits on it so both have fully exited before returning.
	loopWG sync.WaitGroup

	// itemWG tracks in-flight per-file tasks. Stop does not wait on it:
	// in-flight network calls are allowed to complete in the background
	// while Stop returns immediately after pausing the items.
	itemWG sync.WaitGroup
}

// NewEngine constructs an Engine. credentialsAvailable reports whether
// credentials are currently loaded, feeding the lifecycle readiness gate;
// pass a func returning true when the caller has already resolved
// credentials out of band.
func NewEngine(
	store types.ObjectStore,
	bucket string,
	cfg types.UploadConfig,
	keyConfig types.S3KeyConfig,
	ctrl *lifecycle.Controller,
	sink types.EventSink,
	collector *metrics.Collector,
	credentialsAvailable func() bool,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if credentialsAvailable == nil {
		credentialsAvailable = func() bool { return true }
	}

	return &Engine{
		queue:                 NewQueue(cfg.Tier, cfg.MaxConcurrentUploads),
		store:                 store,
		lifecycle:             ctrl,
		sink:                  sink,
		metrics:               collector,
		logger:                logger.With("component", "upload-engine"),
		keyConfig:             keyConfig,
		cfg:                   cfg,
		bucket:                bucket,
		credentialsAvailable:  credentialsAvailable,
		retryStats:            retry.NewStatsCollector(),
		progressCh:            make(chan types.Progress, progressChannelCapacity),
	}
}

// RetryStats reports the aggregate retry activity since the engine was
// constructed.
func (e *Engine) RetryStats() retry.Stats {
	return e.retryStats.GetStats()
}

// Queue exposes the underlying queue for inspection by Process-wide State
// and the CLI.
func (e *Engine) Queue() *Queue { return e.queue }

// Enqueue generates a key for localPath, wraps it in a new UploadItem, and
// admits it into the queue.
func (e *Engine) Enqueue(localPath string, size int64) (*types.UploadItem, error) {
	key := GenerateKey(localPath, e.keyConfig, nil)
	item := &types.UploadItem{
		ID:        uuid.NewString(),
		LocalPath: localPath,
		FileName:  fileName(localPath),
		Size:      size,
		Key:       key,
		Status:    types.UploadPending,
		CreatedAt: time.Now(),
	}
	if err := e.queue.Enqueue(item); err != nil {
		return nil, err
	}
	return item, nil
}

func fileName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// Start begins the supervisor loop, spawning up to MaxConcurrentUploads
// per-file tasks while admission allows. It returns immediately; call
// Stop to end processing. Start is a no-op if already processing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.isProcessing {
		e.mu.Unlock()
		return
	}
	e.isProcessing = true
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	if e.sink != nil {
		e.sink.PublishTestEvent("upload engine processor started")
	}

	e.loopWG.Add(1)
	go e.superviseLoop(ctx)

	e.loopWG.Add(1)
	go e.drainProgress()
}

// Stop ends processing: the engine stops admitting work and every
// in-flight item transitions InProgress to Paused.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.isProcessing {
		e.mu.Unlock()
		return
	}
	e.isProcessing = false
	close(e.stopCh)
	e.mu.Unlock()

	e.loopWG.Wait()
	e.queue.PauseInFlight()
}

func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isProcessing
}

func (e *Engine) superviseLoop(ctx context.Context) {
	defer e.loopWG.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !e.running() {
			return
		}

		readiness := e.lifecycle.UploadReadiness(ctx, e.credentialsAvailable())
		if !readiness.Safe {
			continue
		}

		item := e.queue.NextAdmissible()
		if item == nil {
			continue
		}

		e.itemWG.Add(1)
		go e.processItem(ctx, item)
	}
}

func (e *Engine) drainProgress() {
	defer e.loopWG.Done()
	for {
		select {
		case p, ok := <-e.progressCh:
			if !ok {
				return
			}
			e.queue.ApplyProgress(p)
			if e.sink != nil {
				e.sink.PublishUploadProgress(p)
			}
		case <-e.stopCh:
			// Drain remaining buffered events before exiting so terminal
			// updates already queued are not lost.
			for {
				select {
				case p, ok := <-e.progressCh:
					if !ok {
						return
					}
					e.queue.ApplyProgress(p)
					if e.sink != nil {
						e.sink.PublishUploadProgress(p)
					}
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) emit(p types.Progress, terminal bool) {
	if terminal {
		e.progressCh <- p
		return
	}
	select {
	case e.progressCh <- p:
	default:
		// Interim updates may be dropped under backpressure; terminal
		// updates never take this path.
	}
}

func (e *Engine) processItem(ctx context.Context, item *types.UploadItem) {
	defer e.itemWG.Done()

	start := time.Now()
	effectiveChunk := effectiveChunkSize(e.cfg.ChunkSizeMB)
	if int64(e.cfg.ChunkSizeMB)*1024*1024 < minChunkBytes {
		e.logger.Warn("configured chunk size below protocol minimum, raising to 5 MB",
			"configured_mb", e.cfg.ChunkSizeMB)
	}

	var err error
	if item.Size <= effectiveChunk {
		err = e.uploadSinglePut(ctx, item, start)
	} else {
		err = e.uploadMultipart(ctx, item, start, effectiveChunk)
	}

	if err != nil {
		e.logger.Warn("upload failed", "item", item.ID, "error", err)
		e.queue.FailItem(item.ID, err.Error())
		e.emit(computeProgress(item.ID, item.UploadedBytes, item.Size, time.Since(start), types.UploadFailed), true)
		return
	}

	e.queue.CompleteItem(item.ID)
	e.emit(computeProgress(item.ID, item.Size, item.Size, time.Since(start), types.UploadCompleted), true)
}

// effectiveChunkSize raises a too-small configured chunk size to the
// 5 MB protocol minimum. The caller logs the adjustment; it is never a
// rejection.
func effectiveChunkSize(chunkSizeMB int) int64 {
	configured := int64(chunkSizeMB) * 1024 * 1024
	if configured < minChunkBytes {
		return minChunkBytes
	}
	return configured
}

func (e *Engine) uploadSinglePut(ctx context.Context, item *types.UploadItem, start time.Time) error {
	data, err := os.ReadFile(item.LocalPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileRead, "failed to read file for single-put upload", err).
			WithComponent("upload-engine").WithOperation("uploadSinglePut")
	}

	e.emit(computeProgress(item.ID, 0, item.Size, time.Since(start), types.UploadInProgress), false)

	retryer := retry.New(retry.DefaultConfig()).WithStats(e.retryStats)
	if e.cfg.RetryAttempts > 0 {
		retryer = retryer.WithMaxAttempts(e.cfg.RetryAttempts)
	}
	uploadErr := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return e.store.PutObject(ctx, e.bucket, item.Key, newReusableReader(data), item.Size)
	})
	if uploadErr != nil {
		return uploadErr
	}

	if e.metrics != nil {
		e.metrics.RecordUploadComplete(time.Since(start), item.Size, true)
	}
	return nil
}

func (e *Engine) uploadMultipart(ctx context.Context, item *types.UploadItem, start time.Time, chunkSize int64) error {
	uploadID, err := e.store.CreateMultipartUpload(ctx, e.bucket, item.Key)
	if err != nil {
		return err
	}

	parts, err := e.uploadParts(ctx, item, start, chunkSize, uploadID)
	if err != nil {
		if abortErr := e.store.AbortMultipartUpload(ctx, e.bucket, item.Key, uploadID); abortErr != nil {
			e.logger.Error("failed to abort multipart upload after failure", "item", item.ID, "error", abortErr)
		}
		return err
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	completionRetryer := retry.New(retry.MultipartCompletionConfig()).WithStats(e.retryStats)
	completeErr := completionRetryer.DoWithContext(ctx, func(ctx context.Context) error {
		return e.store.CompleteMultipartUpload(ctx, e.bucket, item.Key, uploadID, parts)
	})
	if completeErr != nil {
		if abortErr := e.store.AbortMultipartUpload(ctx, e.bucket, item.Key, uploadID); abortErr != nil {
			e.logger.Error("failed to abort multipart upload after completion failure", "item", item.ID, "error", abortErr)
		}
		return completeErr
	}

	if e.metrics != nil {
		e.metrics.RecordUploadComplete(time.Since(start), item.Size, true)
	}
	return nil
}

// uploadParts reads the file sequentially in exactly chunkSize chunks
// (the last may be short), guaranteeing a full chunk fill by looping
// short reads, and uploads up to MaxConcurrentParts of them concurrently.
func (e *Engine) uploadParts(ctx context.Context, item *types.UploadItem, start time.Time, chunkSize int64, uploadID string) ([]types.UploadedPart, error) {
	file, err := os.Open(item.LocalPath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, "failed to open file for multipart upload", err)
	}
	defer file.Close()

	concurrency := e.cfg.MaxConcurrentParts
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		parts    []types.UploadedPart
		firstErr error
		uploaded int64
	)

	partNumber := int32(0)
	for {
		buf := make([]byte, chunkSize)
		n, readErr := readFull(file, buf)
		if n > 0 {
			partNumber++
			pn := partNumber
			chunk := buf[:n]

			mu.Lock()
			stop := firstErr != nil
			mu.Unlock()
			if stop {
				break
			}

			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				etag, err := e.uploadPartWithRetry(ctx, item, uploadID, pn, chunk)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}

				mu.Lock()
				parts = append(parts, types.UploadedPart{PartNumber: pn, ETag: etag})
				uploaded += int64(len(chunk))
				progressUploaded := uploaded
				mu.Unlock()

				e.emit(computeProgress(item.ID, progressUploaded, item.Size, time.Since(start), types.UploadInProgress), false)
			}()
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			wg.Wait()
			return nil, errors.Wrap(errors.ErrCodeFileRead, "failed reading chunk for multipart upload", readErr)
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return parts, nil
}

func (e *Engine) uploadPartWithRetry(ctx context.Context, item *types.UploadItem, uploadID string, partNumber int32, chunk []byte) (string, error) {
	retryer := retry.New(retry.DefaultConfig()).WithStats(e.retryStats)
	if e.cfg.RetryAttempts > 0 {
		retryer = retryer.WithMaxAttempts(e.cfg.RetryAttempts)
	}
	var etag string
	err := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		var err error
		etag, err = e.store.UploadPart(ctx, e.bucket, item.Key, uploadID, partNumber, newReusableReader(chunk), int64(len(chunk)))
		return err
	})
	if err != nil {
		return "", err
	}
	if e.metrics != nil {
		e.metrics.RecordUploadPart(0, int64(len(chunk)), true)
	}
	return etag, nil
}

// readFull loops short reads until buf is full or EOF is reached,
// guaranteeing a single short read from the OS never produces a short
// part.
func readFull(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

// newReusableReader wraps a byte slice so a retried PutObject/UploadPart
// call reads the same bytes from the start rather than a partially
// consumed stream.
func newReusableReader(data []byte) io.Reader {
	return &sliceReader{data: data}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}
