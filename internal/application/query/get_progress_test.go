package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/memory"
)

func seedAggregate(t *testing.T, store *memory.Store, studentID, topic string, mastery, consistency float64) {
	t.Helper()

	agg := progress.NewAggregate(shared.StudentID(studentID), shared.Topic(topic))
	agg.MasteryScore = mastery
	agg.ConsistencyScore = consistency
	assert.NoError(t, store.Save(context.Background(), agg))
}

func TestGetAggregate_Found(t *testing.T) {
	store := memory.NewStore()
	seedAggregate(t, store, "s1", "graphs", 55, 20)

	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	agg, err := handler.GetAggregate(context.Background(), "s1", "graphs")
	assert.NoError(t, err)
	assert.Equal(t, 55.0, agg.MasteryScore)
}

func TestGetAggregate_Unknown(t *testing.T) {
	store := memory.NewStore()
	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	_, err := handler.GetAggregate(context.Background(), "s1", "graphs")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

type stubCache struct {
	entries map[string]*progress.Aggregate
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*progress.Aggregate)}
}

func (c *stubCache) Get(_ context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error) {
	if agg, ok := c.entries[studentID.String()+":"+topic.String()]; ok {
		return agg, nil
	}
	return nil, shared.ErrNotFound
}

func (c *stubCache) Set(_ context.Context, agg *progress.Aggregate) error {
	c.sets++
	c.entries[agg.StudentID.String()+":"+agg.Topic.String()] = agg
	return nil
}

func TestGetAggregate_ReadThroughCache(t *testing.T) {
	store := memory.NewStore()
	seedAggregate(t, store, "s1", "graphs", 55, 20)

	cache := newStubCache()
	handler := NewGetProgressHandler(store, store, store.Alerts(), cache, nil)
	ctx := context.Background()

	// First read misses the cache and populates it.
	_, err := handler.GetAggregate(ctx, "s1", "graphs")
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// Second read is served from the cache.
	agg, err := handler.GetAggregate(ctx, "s1", "graphs")
	assert.NoError(t, err)
	assert.Equal(t, 55.0, agg.MasteryScore)
	assert.Equal(t, 1, cache.sets)
}

func TestGetStudentOverview(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	seedAggregate(t, store, "s1", "graphs", 95, 30)
	seedAggregate(t, store, "s1", "sorting", 30, 30)
	seedAggregate(t, store, "s1", "recursion", 60, 30)

	for i := 0; i < 6; i++ {
		_, err := store.Append(ctx, progress.LearningEvent{
			ID: string(rune('a' + i)), StudentID: "s1", Kind: progress.KindQuiz,
			Score: 70, Timestamp: time.Now().UTC(),
		})
		assert.NoError(t, err)
	}

	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	overview, err := handler.GetStudentOverview(ctx, "s1")
	assert.NoError(t, err)
	assert.Len(t, overview.Topics, 3)
	assert.Equal(t, 1, overview.TopicsMastered)
	assert.Equal(t, 1, overview.TopicsStruggling)
	assert.InDelta(t, 61.67, overview.AverageMastery, 0.01)
	assert.Equal(t, 6, overview.TotalEvents)
	assert.Equal(t, 30.0, overview.ConsistencyScore)
}

func TestGetStudentOverview_UnknownStudent(t *testing.T) {
	store := memory.NewStore()
	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	_, err := handler.GetStudentOverview(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDetectStruggle_ReadOnly(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, progress.LearningEvent{
			ID: string(rune('a' + i)), StudentID: "s1", Topic: "pointers",
			Kind: progress.KindExercise, Status: progress.StatusFailed,
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		})
		assert.NoError(t, err)
	}

	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	alert, err := handler.DetectStruggle(ctx, "s1")
	assert.NoError(t, err)
	assert.NotNil(t, alert)
	assert.Equal(t, progress.AlertCompletionRate, alert.Type)

	// Read-side detection never persists alerts.
	stored, err := handler.ListAlerts(ctx, "s1", 10)
	assert.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDetectStruggle_NoHistory(t *testing.T) {
	store := memory.NewStore()
	handler := NewGetProgressHandler(store, store, store.Alerts(), nil, nil)

	alert, err := handler.DetectStruggle(context.Background(), "s1")
	assert.NoError(t, err)
	assert.Nil(t, alert)
}
