package progress

import (
	"context"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Contracts for the storage layer. Implementations live in
// infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateRepository stores per-(student, topic) aggregates.
type AggregateRepository interface {
	// Save inserts or updates an aggregate. One row per (student, topic).
	Save(ctx context.Context, aggregate *Aggregate) error

	// Get returns the aggregate for a student and topic.
	// Returns shared.ErrAggregateNotFound if none exists yet.
	Get(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*Aggregate, error)

	// ListByStudent returns all topic aggregates for a student,
	// ordered by topic. An empty slice is not an error.
	ListByStudent(ctx context.Context, studentID shared.StudentID) ([]*Aggregate, error)
}

// EventLogRepository stores the append-only learning event history.
type EventLogRepository interface {
	// Append persists a learning event and returns the student's lifetime
	// event count after the append. The lifetime count survives pruning of
	// old event rows; it drives the consistency score.
	Append(ctx context.Context, event LearningEvent) (int, error)

	// ListByStudentSince returns the student's events with a timestamp at or
	// after since, ordered by timestamp ascending.
	ListByStudentSince(ctx context.Context, studentID shared.StudentID, since time.Time) ([]LearningEvent, error)

	// CountByStudent returns the student's lifetime event count.
	CountByStudent(ctx context.Context, studentID shared.StudentID) (int, error)

	// PruneBefore removes event rows older than the cutoff and reports how
	// many were removed. Lifetime counts are unaffected.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// AlertRepository stores emitted struggle alerts.
type AlertRepository interface {
	// Save persists an alert.
	Save(ctx context.Context, alert *Alert) error

	// ListByStudent returns the student's most recent alerts,
	// newest first, up to limit.
	ListByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]*Alert, error)
}
