package progress

import (
	"time"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT TOPIC AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// ConsistencyPerEvent is how many consistency points a single learning event
// contributes, capped at ConsistencyCap.
const (
	ConsistencyPerEvent = 5.0
	ConsistencyCap      = 100.0
)

// Aggregate is the accumulated progress state for one (student, topic) pair.
// Aggregates are created lazily on the first event and never deleted.
// MasteryScore is derived; it is only ever written by Apply.
type Aggregate struct {
	// StudentID identifies the student.
	StudentID shared.StudentID

	// Topic identifies the learning topic.
	Topic shared.Topic

	// ExercisesCompleted is the number of completed exercise attempts.
	// Invariant: ExercisesCompleted <= TotalExercises.
	ExercisesCompleted int

	// TotalExercises is the number of exercise attempts of any outcome.
	TotalExercises int

	// AvgQuizScore is the running quiz average (two-point moving average).
	AvgQuizScore float64

	// AvgCodeQuality is the running code review average (same rule).
	AvgCodeQuality float64

	// ConsistencyScore reflects how much the student has been practicing,
	// across all topics: min(100, totalStudentEvents * 5).
	ConsistencyScore float64

	// MasteryScore is the derived weighted score, 0-100, two decimals.
	MasteryScore float64

	// LastActivity is the timestamp of the most recent folded event.
	LastActivity time.Time

	// CreatedAt is when the aggregate was first materialized.
	CreatedAt time.Time

	// UpdatedAt is when the aggregate was last folded into.
	UpdatedAt time.Time
}

// NewAggregate creates an empty aggregate for a student and topic.
func NewAggregate(studentID shared.StudentID, topic shared.Topic) *Aggregate {
	now := time.Now().UTC()
	return &Aggregate{
		StudentID: studentID,
		Topic:     topic,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply folds a single learning event into the aggregate and recomputes the
// derived mastery score. totalStudentEvents is the student's lifetime event
// count across all topics, including the event being applied; it drives the
// consistency component.
//
// The running averages use a two-point moving average: the first observed
// score seeds the average, every later score is averaged with the current
// value. Recent results therefore dominate older ones. A score of exactly 0
// leaves a zero average in the seeded state, so the next score re-seeds it.
// This is the scoring behaviour downstream dashboards were built against and
// must not be changed without a data migration.
func (a *Aggregate) Apply(event LearningEvent, totalStudentEvents int) {
	switch event.Kind {
	case KindExercise:
		a.TotalExercises++
		if event.Status == StatusCompleted {
			a.ExercisesCompleted++
		}
	case KindQuiz:
		a.AvgQuizScore = foldAverage(a.AvgQuizScore, event.Score)
	case KindCodeReview:
		a.AvgCodeQuality = foldAverage(a.AvgCodeQuality, event.Score)
	}

	a.ConsistencyScore = consistencyFor(totalStudentEvents)
	a.LastActivity = event.Timestamp
	a.UpdatedAt = time.Now().UTC()
	a.MasteryScore = CalculateMastery(
		a.ExercisesCompleted,
		a.TotalExercises,
		a.AvgQuizScore,
		a.AvgCodeQuality,
		a.ConsistencyScore,
	)
}

// CompletionRate returns the fraction of completed exercises, 0 when no
// exercises have been attempted.
func (a *Aggregate) CompletionRate() float64 {
	if a.TotalExercises == 0 {
		return 0
	}
	return float64(a.ExercisesCompleted) / float64(a.TotalExercises)
}

// Band returns the mastery band of the current score.
func (a *Aggregate) Band() MasteryBand {
	return BandFor(a.MasteryScore)
}

// foldAverage applies the two-point moving average rule.
func foldAverage(current, score float64) float64 {
	if current == 0 {
		return score
	}
	return (current + score) / 2
}

// consistencyFor maps a lifetime event count to the consistency component.
func consistencyFor(totalStudentEvents int) float64 {
	consistency := float64(totalStudentEvents) * ConsistencyPerEvent
	if consistency > ConsistencyCap {
		return ConsistencyCap
	}
	if consistency < 0 {
		return 0
	}
	return consistency
}
