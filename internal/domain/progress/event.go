package progress

import (
	"time"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING EVENT
// ══════════════════════════════════════════════════════════════════════════════

// EventKind represents the type of learning activity.
type EventKind string

const (
	// KindExercise is a practice exercise attempt.
	KindExercise EventKind = "exercise"
	// KindQuiz is a graded quiz submission.
	KindQuiz EventKind = "quiz"
	// KindCodeReview is a graded code review result.
	KindCodeReview EventKind = "code_review"
)

// IsValid checks if the event kind is one of the known kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case KindExercise, KindQuiz, KindCodeReview:
		return true
	}
	return false
}

// IsGraded returns true for kinds that carry a score.
func (k EventKind) IsGraded() bool {
	return k == KindQuiz || k == KindCodeReview
}

// String returns the string representation.
func (k EventKind) String() string {
	return string(k)
}

// EventStatus represents the outcome of an exercise attempt.
type EventStatus string

const (
	StatusCompleted EventStatus = "completed"
	StatusFailed    EventStatus = "failed"
)

// IsValid checks if the status is one of the known statuses.
func (s EventStatus) IsValid() bool {
	return s == StatusCompleted || s == StatusFailed
}

// String returns the string representation.
func (s EventStatus) String() string {
	return string(s)
}

// LearningEvent is an immutable fact about a student's learning activity.
// Events are never updated after ingestion; corrections arrive as new events.
type LearningEvent struct {
	// ID is the unique event identifier, assigned at ingestion.
	ID string

	// StudentID identifies the student who produced the event.
	StudentID shared.StudentID

	// Topic is the learning topic the event belongs to. May be empty for
	// events not tied to a specific topic.
	Topic shared.Topic

	// Kind is the activity type.
	Kind EventKind

	// Status is the exercise outcome. Only meaningful for KindExercise.
	Status EventStatus

	// Score is the graded result on the 0-100 scale. Only meaningful for
	// graded kinds (quiz, code_review).
	Score float64

	// Timestamp is when the activity happened, as reported upstream.
	Timestamp time.Time
}

// Validate checks the event's structural invariants. Invalid events must be
// rejected before any state is mutated.
func (e LearningEvent) Validate() error {
	if e.StudentID.IsEmpty() {
		return shared.ErrMissingStudentID
	}
	if e.Kind == "" {
		return shared.ErrMissingEventType
	}
	if !e.Kind.IsValid() {
		return shared.ErrUnknownEventType
	}
	if e.Timestamp.IsZero() {
		return shared.ErrMissingTimestamp
	}
	if e.Kind == KindExercise && !e.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	if e.Kind.IsGraded() && (e.Score < 0 || e.Score > 100) {
		return shared.ErrScoreOutOfRange
	}
	return nil
}

// IsCompleted returns true for a completed exercise attempt.
func (e LearningEvent) IsCompleted() bool {
	return e.Kind == KindExercise && e.Status == StatusCompleted
}

// IsFailed returns true for a failed exercise attempt.
func (e LearningEvent) IsFailed() bool {
	return e.Kind == KindExercise && e.Status == StatusFailed
}
