// Package eventsink is the channel-based event bus the UI shell
// subscribes to. The core components only ever publish through the
// types.EventSink interface; this package supplies the in-process
// implementation plus a no-op sink for headless runs.
package eventsink

import (
	"log/slog"
	"sync"
	"time"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// EventType names the event families the core emits.
type EventType string

const (
	EventUploadProgress      EventType = "upload-progress"
	EventTest                EventType = "test-event"
	EventRestoreNotification EventType = "restore-notification"
)

// Event is one published record. Payload holds the typed record for the
// event family: types.Progress, string, or types.RestoreNotification.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// subscriberBuffer bounds each subscriber channel. Interim events are
// dropped for a slow subscriber rather than blocking a publisher.
const subscriberBuffer = 256

// Bus fans published events out to every subscriber. Publishing never
// blocks: a subscriber whose buffer is full misses the event, which
// matches the advisory nature of the UI stream.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewBus constructs an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger.With("component", "eventsink"),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe func. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

func (b *Bus) publish(ev Event) {
	ev.Timestamp = time.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("subscriber buffer full, dropping event", "subscriber", id, "type", ev.Type)
		}
	}
}

// PublishUploadProgress implements types.EventSink.
func (b *Bus) PublishUploadProgress(p types.Progress) {
	b.publish(Event{Type: EventUploadProgress, Payload: p})
}

// PublishTestEvent implements types.EventSink.
func (b *Bus) PublishTestEvent(message string) {
	b.publish(Event{Type: EventTest, Payload: message})
}

// PublishRestoreNotification implements types.EventSink.
func (b *Bus) PublishRestoreNotification(n types.RestoreNotification) {
	b.publish(Event{Type: EventRestoreNotification, Payload: n})
}

// NullSink discards every event. Used when no UI is attached.
type NullSink struct{}

func (NullSink) PublishUploadProgress(types.Progress)                 {}
func (NullSink) PublishTestEvent(string)                              {}
func (NullSink) PublishRestoreNotification(types.RestoreNotification) {}
