package messaging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
}

func TestInMemoryEventBus_PublishToSubscriber(t *testing.T) {
	bus := newSyncBus()

	var received []shared.Event
	err := bus.Subscribe(shared.EventProgressUpdated, func(event shared.Event) error {
		received = append(received, event)
		return nil
	})
	assert.NoError(t, err)

	event := shared.NewProgressUpdatedEvent("s1", "graphs", 42.5, "Learning", "quiz")
	assert.NoError(t, bus.Publish(event))

	assert.Len(t, received, 1)
	assert.Equal(t, shared.EventProgressUpdated, received[0].EventType())
	assert.Equal(t, "s1", received[0].AggregateID())
}

func TestInMemoryEventBus_TypeFiltering(t *testing.T) {
	bus := newSyncBus()

	progressCount := 0
	struggleCount := 0

	_ = bus.Subscribe(shared.EventProgressUpdated, func(shared.Event) error {
		progressCount++
		return nil
	})
	_ = bus.Subscribe(shared.EventStruggleDetected, func(shared.Event) error {
		struggleCount++
		return nil
	})

	_ = bus.Publish(shared.NewProgressUpdatedEvent("s1", "graphs", 10, "Beginner", "exercise"))
	_ = bus.Publish(shared.NewProgressUpdatedEvent("s1", "graphs", 12, "Beginner", "exercise"))
	_ = bus.Publish(shared.NewStruggleDetectedEvent("s1", "low_scores", "medium", "msg", nil))

	assert.Equal(t, 2, progressCount)
	assert.Equal(t, 1, struggleCount)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := newSyncBus()

	count := 0
	_ = bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	})

	_ = bus.Publish(shared.NewProgressUpdatedEvent("s1", "graphs", 10, "Beginner", "exercise"))
	_ = bus.Publish(shared.NewTopicMasteredEvent("s1", "graphs", 95))

	assert.Equal(t, 2, count)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 4})

	var mu sync.Mutex
	count := 0
	_ = bus.Subscribe(shared.EventProgressUpdated, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 20; i++ {
		_ = bus.Publish(shared.NewProgressUpdatedEvent("s1", "graphs", 10, "Beginner", "exercise"))
	}

	// Close waits for in-flight handlers.
	assert.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, count)
}

func TestInMemoryEventBus_ClosedBusRejects(t *testing.T) {
	bus := newSyncBus()
	assert.NoError(t, bus.Close())

	err := bus.Publish(shared.NewTopicMasteredEvent("s1", "graphs", 95))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventProgressUpdated, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestInMemoryEventBus_NilChecks(t *testing.T) {
	bus := newSyncBus()

	assert.ErrorIs(t, bus.Subscribe(shared.EventProgressUpdated, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}
