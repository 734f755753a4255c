package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pairlink/internal/testutil"
	"pairlink/internal/types"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(testutil.TestLogger(t))

	sub := bus.Subscribe(2)
	defer sub.Cancel()

	event := types.NotificationEvent{
		Type:       types.ChatResponseEvent,
		SenderId:   1,
		ReceiverId: 2,
		Response:   types.StatusAccepted,
		Timestamp:  time.Now().UTC(),
	}
	bus.Publish(event)

	select {
	case got := <-sub.C:
		assert.Equal(t, event, got)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscription channel")
	}
}

func TestBusPublishOnlyToReceiver(t *testing.T) {
	bus := NewBus(testutil.TestLogger(t))

	receiver := bus.Subscribe(2)
	defer receiver.Cancel()
	other := bus.Subscribe(3)
	defer other.Cancel()

	bus.Publish(types.NotificationEvent{Type: types.ChatResponseEvent, SenderId: 1, ReceiverId: 2, Response: types.StatusDeclined})

	select {
	case <-receiver.C:
	case <-time.After(time.Second):
		t.Fatal("expected event for receiver")
	}

	select {
	case ev := <-other.C:
		t.Fatalf("unexpected event for other account: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishNoSubscribers(t *testing.T) {
	bus := NewBus(testutil.TestLogger(t))

	// must not block or panic
	bus.Publish(types.NotificationEvent{Type: types.ChatResponseEvent, ReceiverId: 42})
}

func TestBusCancel(t *testing.T) {
	bus := NewBus(testutil.TestLogger(t))

	sub := bus.Subscribe(2)
	sub.Cancel()

	_, ok := <-sub.C
	assert.False(t, ok, "expected channel closed after cancel")

	// cancelling twice is a no-op
	sub.Cancel()

	bus.Publish(types.NotificationEvent{Type: types.ChatResponseEvent, ReceiverId: 2})
}

func TestBusFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(testutil.TestLogger(t))

	sub := bus.Subscribe(2)
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(types.NotificationEvent{Type: types.ChatResponseEvent, ReceiverId: 2})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
}
