package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/internal/infrastructure/messaging"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/memory"
)

type testRig struct {
	store     *memory.Store
	bus       *messaging.InMemoryEventBus
	handler   *RecordEventHandler
	published []shared.Event
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	rig := &testRig{
		store: memory.NewStore(),
		bus:   messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false}),
	}

	err := rig.bus.SubscribeAll(func(event shared.Event) error {
		rig.published = append(rig.published, event)
		return nil
	})
	assert.NoError(t, err)

	rig.handler = NewRecordEventHandler(rig.store, rig.store, rig.store.Alerts(), rig.bus, nil)
	return rig
}

func (r *testRig) publishedTypes() []shared.EventType {
	types := make([]shared.EventType, 0, len(r.published))
	for _, event := range r.published {
		types = append(types, event.EventType())
	}
	return types
}

func TestRecordEvent_ExerciseUpdatesAggregate(t *testing.T) {
	rig := newTestRig(t)

	result, err := rig.handler.Handle(context.Background(), RecordEventCommand{
		StudentID: "s1",
		Topic:     "goroutines",
		Kind:      "exercise",
		Status:    "completed",
		Timestamp: time.Now().UTC(),
	})

	assert.NoError(t, err)
	assert.NotEmpty(t, result.EventID)
	assert.Equal(t, 1, result.Aggregate.ExercisesCompleted)
	assert.Equal(t, 1, result.Aggregate.TotalExercises)
	assert.Equal(t, 5.0, result.Aggregate.ConsistencyScore)
	assert.Nil(t, result.Alert)

	// The fold is persisted, not just returned.
	stored, err := rig.store.Get(context.Background(), "s1", "goroutines")
	assert.NoError(t, err)
	assert.Equal(t, result.Aggregate.MasteryScore, stored.MasteryScore)

	assert.Equal(t, []shared.EventType{shared.EventProgressUpdated}, rig.publishedTypes())
}

func TestRecordEvent_ValidationLeavesStateUntouched(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.handler.Handle(context.Background(), RecordEventCommand{
		StudentID: "s1",
		Topic:     "goroutines",
		Kind:      "quiz",
		Score:     150,
		Timestamp: time.Now().UTC(),
	})

	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	count, countErr := rig.store.CountByStudent(context.Background(), "s1")
	assert.NoError(t, countErr)
	assert.Equal(t, 0, count)
	assert.Empty(t, rig.published)
}

func TestRecordEvent_ConsistencySpansTopics(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, topic := range []string{"graphs", "sorting", "recursion"} {
		_, err := rig.handler.Handle(ctx, RecordEventCommand{
			StudentID: "s1", Topic: topic, Kind: "quiz", Score: 80, Timestamp: now,
		})
		assert.NoError(t, err)
	}

	// Third event overall, so the last fold sees 15 consistency points even
	// though it is the first event for its topic.
	agg, err := rig.store.Get(ctx, "s1", "recursion")
	assert.NoError(t, err)
	assert.Equal(t, 15.0, agg.ConsistencyScore)
}

func TestRecordEvent_LowCompletionRaisesAlert(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var last *RecordEventResult
	for i := 0; i < 5; i++ {
		result, err := rig.handler.Handle(ctx, RecordEventCommand{
			StudentID: "s1",
			Topic:     "pointers",
			Kind:      "exercise",
			Status:    "failed",
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		})
		assert.NoError(t, err)
		last = result
	}

	assert.NotNil(t, last.Alert)
	assert.Equal(t, progress.AlertCompletionRate, last.Alert.Type)
	assert.Equal(t, progress.SeverityHigh, last.Alert.Severity)
	assert.NotEmpty(t, last.Alert.ID)

	// Alert is persisted and a struggle event goes out.
	alerts, err := rig.store.Alerts().ListByStudent(ctx, "s1", 10)
	assert.NoError(t, err)
	assert.NotEmpty(t, alerts)
	assert.Contains(t, rig.publishedTypes(), shared.EventStruggleDetected)
}

func TestRecordEvent_MasteredTransitionPublishesEvent(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	now := time.Now().UTC()

	commands := []RecordEventCommand{
		{StudentID: "s1", Topic: "graphs", Kind: "quiz", Score: 100, Timestamp: now},
		{StudentID: "s1", Topic: "graphs", Kind: "code_review", Score: 100, Timestamp: now},
		{StudentID: "s1", Topic: "graphs", Kind: "exercise", Status: "completed", Timestamp: now},
	}

	var result *RecordEventResult
	var err error
	for _, cmd := range commands {
		result, err = rig.handler.Handle(ctx, cmd)
		assert.NoError(t, err)
	}

	// 40 completion + 30 quiz + 20 code + 1.5 consistency.
	assert.Equal(t, 91.5, result.Aggregate.MasteryScore)
	assert.Equal(t, progress.BandMastered, result.Aggregate.Band())
	assert.Contains(t, rig.publishedTypes(), shared.EventTopicMastered)
}

func TestRecordBatch_PartialFailure(t *testing.T) {
	rig := newTestRig(t)
	batch := NewRecordBatchHandler(rig.handler)
	now := time.Now().UTC()

	result, err := batch.Handle(context.Background(), RecordBatchCommand{
		Events: []RecordEventCommand{
			{StudentID: "s1", Topic: "graphs", Kind: "quiz", Score: 70, Timestamp: now},
			{StudentID: "", Topic: "graphs", Kind: "quiz", Score: 70, Timestamp: now},
			{StudentID: "s1", Topic: "graphs", Kind: "quiz", Score: 90, Timestamp: now},
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.ErrorIs(t, result.Errors[1], shared.ErrEmptyValue)
}
