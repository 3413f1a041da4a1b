package upload

import (
	"sort"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// Queue owns every UploadItem for its lifetime, plus the live-progress
// map and the authoritative concurrency counter. All critical sections
// are short: enqueue, admit, apply-progress, and cleanup never hold the
// lock across an object-store call.
type Queue struct {
	mu sync.Mutex

	items   []*types.UploadItem
	byID    map[string]*types.UploadItem
	live    map[string]types.Progress
	active  int
	tier    types.UploadTier
	maxConc int

	totalBytes     int64
	totalCompleted int64
}

// NewQueue constructs an empty Queue governed by the given tier and
// concurrency cap.
func NewQueue(tier types.UploadTier, maxConcurrentUploads int) *Queue {
	return &Queue{
		byID:    make(map[string]*types.UploadItem),
		live:    make(map[string]types.Progress),
		tier:    tier,
		maxConc: maxConcurrentUploads,
	}
}

// effectiveActiveLocked is the conservative maximum of three views: a
// scan of InProgress items, the live-progress map size, and the explicit
// counter. Any view lagging the others must not cause over-admission.
// Callers must hold mu.
func (q *Queue) effectiveActiveLocked() int {
	inProgress := 0
	for _, item := range q.items {
		if item.Status == types.UploadInProgress {
			inProgress++
		}
	}
	max := inProgress
	if len(q.live) > max {
		max = len(q.live)
	}
	if q.active > max {
		max = q.active
	}
	return max
}

// EffectiveActive returns the current admission-relevant concurrency
// count.
func (q *Queue) EffectiveActive() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.effectiveActiveLocked()
}

// Enqueue appends a new Pending item. Free tier additionally rejects the
// call while any item is Pending or InProgress, forcing strictly serial
// end-to-end processing.
func (q *Queue) Enqueue(item *types.UploadItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.tier == types.TierFree {
		for _, existing := range q.items {
			if existing.Status == types.UploadPending || existing.Status == types.UploadInProgress {
				return errors.New(errors.ErrCodeConfigTierViolation,
					"free tier forces strictly serial processing; an item is already pending or in progress").
					WithComponent("upload-queue")
			}
		}
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.Status = types.UploadPending

	q.items = append(q.items, item)
	q.byID[item.ID] = item
	return nil
}

// NextAdmissible returns the next item eligible to start, honoring the
// Paused-before-Pending tie-break and FIFO-by-creation-timestamp within a
// status, or nil if admission is currently not allowed or no item
// qualifies.
func (q *Queue) NextAdmissible() *types.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	effective := q.effectiveActiveLocked()
	if effective >= q.maxConc {
		return nil
	}
	if q.tier == types.TierFree && effective != 0 {
		return nil
	}

	candidate := pickCandidate(q.items)
	if candidate == nil {
		return nil
	}

	candidate.Status = types.UploadInProgress
	now := time.Now()
	candidate.StartedAt = &now
	q.active++
	return candidate
}

// pickCandidate implements the tie-break: Paused items resume before new
// Pending items; within the same status, FIFO by creation timestamp.
func pickCandidate(items []*types.UploadItem) *types.UploadItem {
	var paused, pending []*types.UploadItem
	for _, item := range items {
		switch item.Status {
		case types.UploadPaused:
			paused = append(paused, item)
		case types.UploadPending:
			pending = append(pending, item)
		}
	}

	pool := paused
	if len(pool) == 0 {
		pool = pending
	}
	if len(pool) == 0 {
		return nil
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].CreatedAt.Before(pool[j].CreatedAt) })
	return pool[0]
}

// ApplyProgress records an interim Progress observation against the live
// map and the item's dynamics. It does not perform terminal cleanup;
// callers use CompleteItem/FailItem for that.
func (q *Queue) ApplyProgress(p types.Progress) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[p.ItemID]
	if !ok {
		return
	}
	if item.Status != types.UploadInProgress {
		return
	}
	item.UploadedBytes = p.UploadedBytes
	item.SpeedMbps = p.SpeedMbps
	item.ETASeconds = p.ETASeconds
	q.live[p.ItemID] = p
}

// CompleteItem performs the terminal cleanup for a successful upload.
// Idempotent: a second call on an
// already-Completed item is a no-op.
func (q *Queue) CompleteItem(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok || item.Status == types.UploadCompleted {
		return
	}

	q.cleanupLocked(item)

	now := time.Now()
	item.Status = types.UploadCompleted
	item.CompletedAt = &now
	item.UploadedBytes = item.Size
	q.totalBytes += item.Size
	q.totalCompleted++
}

// FailItem performs the terminal cleanup for a failed upload, recording
// errMsg. Idempotent like CompleteItem.
func (q *Queue) FailItem(id, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok || item.Status == types.UploadFailed || item.Status == types.UploadCompleted {
		return
	}

	q.cleanupLocked(item)

	item.Status = types.UploadFailed
	item.LastError = errMsg
}

// PauseInFlight transitions every InProgress item to Paused, used when
// the engine is stopped.
func (q *Queue) PauseInFlight() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.Status == types.UploadInProgress {
			q.cleanupLocked(item)
			item.Status = types.UploadPaused
		}
	}
}

// CancelItem transitions an InProgress item to Cancelled.
func (q *Queue) CancelItem(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok || item.Status != types.UploadInProgress {
		return
	}
	q.cleanupLocked(item)
	item.Status = types.UploadCancelled
}

// RetryItem transitions a Failed item back to Pending, clearing its
// progress and error and incrementing its retry counter.
func (q *Queue) RetryItem(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok || item.Status != types.UploadFailed {
		return errors.New(errors.ErrCodeConfigInvalidValue, "only failed items can be retried").
			WithComponent("upload-queue")
	}

	item.Status = types.UploadPending
	item.UploadedBytes = 0
	item.SpeedMbps = 0
	item.ETASeconds = nil
	item.LastError = ""
	item.RetryCount++
	item.StartedAt = nil
	return nil
}

// cleanupLocked removes the item's live-progress entry and decrements the
// active counter, guarded against underflow and double-decrement: if the
// item was neither InProgress nor present in the live map, the counter is
// left untouched. Callers must hold mu.
func (q *Queue) cleanupLocked(item *types.UploadItem) {
	_, wasLive := q.live[item.ID]
	wasInProgress := item.Status == types.UploadInProgress

	delete(q.live, item.ID)

	if (wasLive || wasInProgress) && q.active > 0 {
		q.active--
	}
}

// Items returns a snapshot of every item currently owned by the queue.
func (q *Queue) Items() []types.UploadItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.UploadItem, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

// Get returns a copy of the item with the given id, if present.
func (q *Queue) Get(id string) (types.UploadItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.byID[id]
	if !ok {
		return types.UploadItem{}, false
	}
	return *item, true
}

// Totals returns the process-lifetime byte and completed-file counters.
func (q *Queue) Totals() (totalBytes, totalCompleted int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalBytes, q.totalCompleted
}
