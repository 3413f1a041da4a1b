// Package state aggregates the queue, statistics, and system status
// snapshots the UI consumes. Everything here is derived, refreshed on
// demand, and never authoritative for upload correctness.
package state

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/civictech-tv/reelvault-core/internal/lifecycle"
	"github.com/civictech-tv/reelvault-core/internal/upload"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// UploadStatistics is the aggregate view over the queue's lifetime
// counters and current composition.
type UploadStatistics struct {
	TotalBytesUploaded  int64
	TotalFilesCompleted int64
	Pending             int
	InProgress          int
	Completed           int
	Failed              int
	Paused              int
	Cancelled           int
	EffectiveActive     int
}

// Manager assembles snapshots from the live components. All fields are
// optional except the queue; nil collaborators degrade the corresponding
// probe to its zero value.
type Manager struct {
	queue                *upload.Queue
	lifecycle            *lifecycle.Controller
	store                types.ObjectStore
	bucket               string
	credentialsAvailable func() bool
	watchRoot            string
	logger               *slog.Logger
}

// New constructs a Manager. watchRoot, when non-empty, is the path whose
// filesystem the disk-free probe samples.
func New(
	queue *upload.Queue,
	ctrl *lifecycle.Controller,
	store types.ObjectStore,
	bucket string,
	credentialsAvailable func() bool,
	watchRoot string,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if credentialsAvailable == nil {
		credentialsAvailable = func() bool { return false }
	}
	return &Manager{
		queue:                queue,
		lifecycle:            ctrl,
		store:                store,
		bucket:               bucket,
		credentialsAvailable: credentialsAvailable,
		watchRoot:            watchRoot,
		logger:               logger.With("component", "state"),
	}
}

// UploadStatistics derives the aggregate queue view.
func (m *Manager) UploadStatistics() UploadStatistics {
	stats := UploadStatistics{}
	if m.queue == nil {
		return stats
	}

	stats.TotalBytesUploaded, stats.TotalFilesCompleted = m.queue.Totals()
	stats.EffectiveActive = m.queue.EffectiveActive()

	for _, item := range m.queue.Items() {
		switch item.Status {
		case types.UploadPending:
			stats.Pending++
		case types.UploadInProgress:
			stats.InProgress++
		case types.UploadCompleted:
			stats.Completed++
		case types.UploadFailed:
			stats.Failed++
		case types.UploadPaused:
			stats.Paused++
		case types.UploadCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// SystemStatus refreshes the connectivity and host-metric snapshot.
func (m *Manager) SystemStatus(ctx context.Context) types.SystemStatus {
	status := types.SystemStatus{
		CredentialsAvailable: m.credentialsAvailable(),
		GoroutineCount:       runtime.NumGoroutine(),
		LastHeartbeat:        time.Now(),
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	status.HeapAllocBytes = memStats.HeapAlloc

	if m.watchRoot != "" {
		free, err := diskFree(m.watchRoot)
		if err != nil {
			m.logger.Debug("disk-free probe failed", "path", m.watchRoot, "error", err)
		} else {
			status.DiskFreeBytes = free
		}
	}

	if m.store != nil && m.bucket != "" {
		status.BucketReachable = m.store.HeadBucket(ctx, m.bucket) == nil
	}
	if m.lifecycle != nil {
		readiness := m.lifecycle.UploadReadiness(ctx, status.CredentialsAvailable)
		status.LifecycleHealthy = readiness.LifecycleHealthy
	}

	return status
}
