package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
)

func TestStore_SaveAndGetAggregate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	agg := progress.NewAggregate("s1", "goroutines")
	agg.Apply(progress.LearningEvent{
		StudentID: "s1", Topic: "goroutines",
		Kind: progress.KindExercise, Status: progress.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}, 1)

	assert.NoError(t, store.Save(ctx, agg))

	got, err := store.Get(ctx, "s1", "goroutines")
	assert.NoError(t, err)
	assert.Equal(t, 1, got.TotalExercises)
	assert.Equal(t, agg.MasteryScore, got.MasteryScore)

	// Stored copy is isolated from later caller mutations.
	agg.TotalExercises = 99
	got, err = store.Get(ctx, "s1", "goroutines")
	assert.NoError(t, err)
	assert.Equal(t, 1, got.TotalExercises)
}

func TestStore_GetUnknownAggregate(t *testing.T) {
	store := NewStore()

	_, err := store.Get(context.Background(), "nobody", "nothing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStore_ListByStudentOrdersByTopic(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	assert.NoError(t, store.Save(ctx, progress.NewAggregate("s1", "sorting")))
	assert.NoError(t, store.Save(ctx, progress.NewAggregate("s1", "graphs")))
	assert.NoError(t, store.Save(ctx, progress.NewAggregate("s2", "graphs")))

	aggs, err := store.ListByStudent(ctx, "s1")
	assert.NoError(t, err)
	assert.Len(t, aggs, 2)
	assert.Equal(t, shared.Topic("graphs"), aggs[0].Topic)
	assert.Equal(t, shared.Topic("sorting"), aggs[1].Topic)
}

func TestStore_AppendReturnsLifetimeCount(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		total, err := store.Append(ctx, progress.LearningEvent{
			ID: fmt.Sprintf("e%d", i), StudentID: "s1", Topic: "graphs",
			Kind: progress.KindExercise, Status: progress.StatusCompleted,
			Timestamp: now,
		})
		assert.NoError(t, err)
		assert.Equal(t, i, total)
	}

	count, err := store.CountByStudent(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_LifetimeCountSurvivesPruning(t *testing.T) {
	store := NewStoreWithRetention(time.Hour)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	_, err := store.Append(ctx, progress.LearningEvent{
		ID: "e1", StudentID: "s1", Kind: progress.KindQuiz, Score: 80, Timestamp: old,
	})
	assert.NoError(t, err)

	// The second append prunes the first event, but the counter keeps it.
	total, err := store.Append(ctx, progress.LearningEvent{
		ID: "e2", StudentID: "s1", Kind: progress.KindQuiz, Score: 90, Timestamp: time.Now().UTC(),
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, total)

	events, err := store.ListByStudentSince(ctx, "s1", time.Time{}.Add(time.Nanosecond))
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].ID)
}

func TestStore_ListByStudentSinceFiltersAndSorts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, offset := range []time.Duration{-3 * time.Hour, -time.Hour, -2 * time.Hour} {
		_, err := store.Append(ctx, progress.LearningEvent{
			ID: fmt.Sprintf("e%d", i), StudentID: "s1", Kind: progress.KindQuiz,
			Score: 50, Timestamp: now.Add(offset),
		})
		assert.NoError(t, err)
	}

	events, err := store.ListByStudentSince(ctx, "s1", now.Add(-150*time.Minute))
	assert.NoError(t, err)
	assert.Len(t, events, 2)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}

func TestStore_PruneBefore(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _ = store.Append(ctx, progress.LearningEvent{ID: "old", StudentID: "s1", Kind: progress.KindQuiz, Score: 10, Timestamp: now.Add(-48 * time.Hour)})
	_, _ = store.Append(ctx, progress.LearningEvent{ID: "new", StudentID: "s1", Kind: progress.KindQuiz, Score: 10, Timestamp: now})

	pruned, err := store.PruneBefore(ctx, now.Add(-24*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, pruned)

	count, err := store.CountByStudent(ctx, "s1")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_Alerts(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	repo := store.Alerts()

	for i := 0; i < 3; i++ {
		err := repo.Save(ctx, &progress.Alert{
			ID:        fmt.Sprintf("a%d", i),
			StudentID: "s1",
			Type:      progress.AlertLowScores,
			Severity:  progress.SeverityMedium,
			Timestamp: time.Now().UTC(),
		})
		assert.NoError(t, err)
	}

	alerts, err := repo.ListByStudent(ctx, "s1", 2)
	assert.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Equal(t, "a2", alerts[0].ID)
	assert.Equal(t, "a1", alerts[1].ID)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			studentID := shared.StudentID(fmt.Sprintf("s%d", i%5))
			_, err := store.Append(ctx, progress.LearningEvent{
				ID: fmt.Sprintf("e%d", i), StudentID: studentID,
				Kind: progress.KindQuiz, Score: 70, Timestamp: now,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 5; i++ {
		count, err := store.CountByStudent(ctx, shared.StudentID(fmt.Sprintf("s%d", i)))
		assert.NoError(t, err)
		total += count
	}
	assert.Equal(t, 50, total)
}
