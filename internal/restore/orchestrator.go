// Package restore issues restore requests against archived objects,
// tracks their asynchronous completion, emits completion notifications,
// and streams restored bytes to disk.
package restore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// Orchestrator owns the RestoreJob map for a single bucket.
type Orchestrator struct {
	store    types.ObjectStore
	bucket   string
	strategy PollingStrategy
	sink     types.EventSink
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[string]*types.RestoreJob
}

// New constructs an Orchestrator. strategy selects how check_status
// determines completion; pass HeadObjectPollingStrategy{} for production
// use against a real provider. sink may be nil, in which case terminal
// transitions are not published to the UI bus.
func New(store types.ObjectStore, bucket string, strategy PollingStrategy, sink types.EventSink, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == nil {
		strategy = HeadObjectPollingStrategy{}
	}
	return &Orchestrator{
		store:    store,
		bucket:   bucket,
		strategy: strategy,
		sink:     sink,
		logger:   logger.With("component", "restore"),
		jobs:     make(map[string]*types.RestoreJob),
	}
}

// publishTerminal emits one terminal notification through the event sink.
// Called outside the job-map lock.
func (o *Orchestrator) publishTerminal(n types.RestoreNotification) {
	if o.sink != nil {
		o.sink.PublishRestoreNotification(n)
	}
}

func validTier(tier types.RestoreTier) bool {
	switch tier {
	case types.RestoreStandard, types.RestoreExpedited, types.RestoreBulk:
		return true
	default:
		return false
	}
}

// RequestRestore validates tier, and creates a RestoreJob with status
// InProgress. A duplicate request for a key already InProgress is
// idempotent and returns the existing job unchanged.
func (o *Orchestrator) RequestRestore(ctx context.Context, key string, tier types.RestoreTier) (*types.RestoreJob, error) {
	if !validTier(tier) {
		return nil, errors.New(errors.ErrCodeConfigInvalidValue, "invalid restore tier").
			WithComponent("restore").WithContext("tier", string(tier))
	}

	o.mu.Lock()
	if existing, ok := o.jobs[key]; ok && existing.Status == types.RestoreInProgress {
		job := *existing
		o.mu.Unlock()
		return &job, nil
	}
	o.mu.Unlock()

	if err := o.store.RequestRestore(ctx, o.bucket, key, tier); err != nil {
		return nil, err
	}

	job := &types.RestoreJob{
		Key:         key,
		Tier:        tier,
		Status:      types.RestoreInProgress,
		RequestedAt: time.Now(),
	}

	o.mu.Lock()
	o.jobs[key] = job
	o.mu.Unlock()

	result := *job
	return &result, nil
}

// CheckStatus consults the polling strategy for an in-progress job and
// advances its status to Completed if the restore is done. Jobs already
// terminal are returned unchanged.
func (o *Orchestrator) CheckStatus(ctx context.Context, key string) (*types.RestoreJob, error) {
	o.mu.Lock()
	job, ok := o.jobs[key]
	if !ok {
		o.mu.Unlock()
		return &types.RestoreJob{Key: key, Status: types.RestoreNotFound}, nil
	}
	if job.Status != types.RestoreInProgress {
		result := *job
		o.mu.Unlock()
		return &result, nil
	}
	requestedAt := job.RequestedAt
	o.mu.Unlock()

	restored, expiry, err := o.strategy.Poll(ctx, o.store, o.bucket, key, requestedAt)
	if err != nil {
		o.mu.Lock()
		job.Status = types.RestoreFailed
		job.ErrorMessage = err.Error()
		result := *job
		o.mu.Unlock()
		o.publishTerminal(types.RestoreNotification{
			Key:       key,
			Status:    "failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return &result, nil
	}

	if !restored {
		o.mu.Lock()
		result := *job
		o.mu.Unlock()
		return &result, nil
	}

	now := time.Now()
	o.mu.Lock()
	job.Status = types.RestoreCompleted
	job.CompletedAt = &now
	if expiry != nil {
		if parsed, perr := time.Parse(time.RFC3339, *expiry); perr == nil {
			job.ExpiresAt = &parsed
		}
	}
	result := *job
	o.mu.Unlock()

	o.publishTerminal(types.RestoreNotification{
		Key:       key,
		Status:    "completed",
		Message:   "restore completed for " + key,
		Timestamp: now,
	})
	return &result, nil
}

// Notifications returns all jobs currently Completed or Failed, each with
// a human-readable message. Repeated calls are idempotent — they do not
// mutate job state.
func (o *Orchestrator) Notifications() []types.RestoreNotification {
	o.mu.Lock()
	defer o.mu.Unlock()

	var notifications []types.RestoreNotification
	for _, job := range o.jobs {
		switch job.Status {
		case types.RestoreCompleted:
			notifications = append(notifications, types.RestoreNotification{
				Key:       job.Key,
				Status:    "completed",
				Message:   "restore completed for " + job.Key,
				Timestamp: valueOrNow(job.CompletedAt),
			})
		case types.RestoreFailed:
			msg := job.ErrorMessage
			if msg == "" {
				msg = "restore failed for " + job.Key
			}
			notifications = append(notifications, types.RestoreNotification{
				Key:       job.Key,
				Status:    "failed",
				Message:   msg,
				Timestamp: job.RequestedAt,
			})
		}
	}
	return notifications
}

func valueOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}

// Cancel transitions an InProgress job to Cancelled. Any other source
// state is an error.
func (o *Orchestrator) Cancel(key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, ok := o.jobs[key]
	if !ok || job.Status != types.RestoreInProgress {
		return errors.New(errors.ErrCodeConfigInvalidValue, "no in-progress restore job for key").
			WithComponent("restore").WithContext("key", key)
	}
	job.Status = types.RestoreCancelled
	return nil
}

// ListJobs returns a snapshot of every known job.
func (o *Orchestrator) ListJobs() []types.RestoreJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	jobs := make([]types.RestoreJob, 0, len(o.jobs))
	for _, job := range o.jobs {
		jobs = append(jobs, *job)
	}
	return jobs
}

// ClearHistory wipes the job map entirely.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = make(map[string]*types.RestoreJob)
}

// DownloadRestored requires the job to be Completed, streams the object's
// bytes from the facade, and writes them atomically: to a temp path in the
// same directory, then renamed into place.
func (o *Orchestrator) DownloadRestored(ctx context.Context, key, localPath string) (*types.DownloadProgress, error) {
	o.mu.Lock()
	job, ok := o.jobs[key]
	status := types.RestoreNotFound
	if ok {
		status = job.Status
	}
	o.mu.Unlock()

	if status != types.RestoreCompleted {
		return nil, errors.New(errors.ErrCodeConfigInvalidValue, "restore job is not completed").
			WithComponent("restore").WithContext("key", key).WithContext("status", string(status))
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilePathResolution, "failed to create parent directory", err)
	}

	body, size, err := o.store.GetObject(ctx, o.bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(localPath), ".reelvault-restore-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileRead, "failed to create temp file for download", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(errors.ErrCodeFileRead, "failed to download restored object", err)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(errors.ErrCodeFileRead, "failed to finalize downloaded file", closeErr)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return nil, errors.Wrap(errors.ErrCodeFilePathResolution, "failed to place downloaded file", err)
	}

	return &types.DownloadProgress{
		Key:          key,
		LocalPath:    localPath,
		BytesWritten: written,
		TotalBytes:   size,
		Completed:    true,
	}, nil
}
