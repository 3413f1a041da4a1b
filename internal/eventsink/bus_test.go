package eventsink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictech-tv/reelvault-core/pkg/types"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)

	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel1()
	defer cancel2()

	bus.PublishTestEvent("hello")

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventTest, ev.Type)
			assert.Equal(t, "hello", ev.Payload)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus(nil)
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.PublishUploadProgress(types.Progress{ItemID: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.PublishRestoreNotification(types.RestoreNotification{Key: "k", Status: "completed"})
}

func TestRestoreNotificationPayload(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.PublishRestoreNotification(types.RestoreNotification{Key: "clip.mp4", Status: "failed", Message: "boom"})

	ev := <-ch
	require.Equal(t, EventRestoreNotification, ev.Type)
	n, ok := ev.Payload.(types.RestoreNotification)
	require.True(t, ok)
	assert.Equal(t, "clip.mp4", n.Key)
	assert.Equal(t, "failed", n.Status)
}
