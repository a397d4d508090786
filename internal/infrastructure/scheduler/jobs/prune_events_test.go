package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/memory"
)

func appendEvent(t *testing.T, store *memory.Store, studentID shared.StudentID, at time.Time) {
	t.Helper()

	event := progress.LearningEvent{
		ID:        "evt-" + at.Format("150405.000"),
		StudentID: studentID,
		Topic:     "goroutines",
		Kind:      progress.KindExercise,
		Status:    progress.StatusCompleted,
		Timestamp: at,
	}
	_, err := store.Append(context.Background(), event)
	assert.NoError(t, err)
}

func TestPruneEventsJobRemovesOldEvents(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()

	appendEvent(t, store, "s1", now.Add(-30*24*time.Hour))
	appendEvent(t, store, "s1", now.Add(-time.Hour))

	job := NewPruneEventsJob(store, 8*24*time.Hour, nil)
	assert.NoError(t, job.Run(context.Background()))

	recent, err := store.ListByStudentSince(context.Background(), "s1", now.Add(-7*24*time.Hour))
	assert.NoError(t, err)
	assert.Len(t, recent, 1)

	// Lifetime counter still reflects both events.
	total, err := store.CountByStudent(context.Background(), "s1")
	assert.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestPruneEventsJobMetadata(t *testing.T) {
	job := NewPruneEventsJob(memory.NewStore(), 48*time.Hour, nil)

	assert.Equal(t, "prune_events", job.Name())
	assert.Contains(t, job.Description(), "48h")
}
