package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

func detectorEvents(now time.Time, specs ...func(time.Time) LearningEvent) []LearningEvent {
	events := make([]LearningEvent, 0, len(specs))
	for i, spec := range specs {
		// Spread events backwards an hour apart so ordering is deterministic.
		events = append(events, spec(now.Add(-time.Duration(len(specs)-i)*time.Hour)))
	}
	return events
}

func failedOn(topic string) func(time.Time) LearningEvent {
	return func(ts time.Time) LearningEvent {
		return LearningEvent{StudentID: "s1", Topic: shared.Topic(topic), Kind: KindExercise, Status: StatusFailed, Timestamp: ts}
	}
}

func completedOn(topic string) func(time.Time) LearningEvent {
	return func(ts time.Time) LearningEvent {
		return LearningEvent{StudentID: "s1", Topic: shared.Topic(topic), Kind: KindExercise, Status: StatusCompleted, Timestamp: ts}
	}
}

func quizScored(score float64) func(time.Time) LearningEvent {
	return func(ts time.Time) LearningEvent {
		return LearningEvent{StudentID: "s1", Topic: "algebra", Kind: KindQuiz, Score: score, Timestamp: ts}
	}
}

func TestDetector_NoEventsNoAlert(t *testing.T) {
	d := NewDetector()
	result := d.Detect("s1", nil, time.Now().UTC())
	assert.Nil(t, result.Alert)
	assert.Equal(t, 0, result.Evaluated)
}

func TestDetector_CompletionRate(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// 5 attempts, 2 completed -> 40% < 50%.
	events := detectorEvents(now,
		completedOn("a"), completedOn("a"),
		failedOn("a"), failedOn("b"), failedOn("c"),
	)
	result := d.Detect("s1", events, now)
	assert.NotNil(t, result.Alert)
	assert.Equal(t, AlertCompletionRate, result.Alert.Type)
	assert.Equal(t, SeverityHigh, result.Alert.Severity)
	assert.Equal(t, "Low completion rate: 40% over last 7 days", result.Alert.Message)
	assert.Equal(t, []string{
		"Consider easier exercises",
		"Review foundational concepts",
		"Increase hint usage",
	}, result.Alert.Recommendations)
}

func TestDetector_CompletionRateNotAtExactlyHalf(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// 6 attempts, 3 completed -> exactly 50%, no alert from this rule and
	// failures are spread so the second rule stays quiet too.
	events := detectorEvents(now,
		completedOn("a"), completedOn("b"), completedOn("c"),
		failedOn("a"), failedOn("b"), failedOn("c"),
	)
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
}

func TestDetector_CompletionRateNeedsFiveAttempts(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// 4 attempts all failed: not enough volume for the completion rule, but
	// topic "a" has only 2 failures so no rule fires.
	events := detectorEvents(now,
		failedOn("a"), failedOn("a"), failedOn("b"), failedOn("b"),
	)
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
}

func TestDetector_RepeatedFailures(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// 4/7 completed keeps the completion rule quiet.
	events := detectorEvents(now,
		completedOn("x"), completedOn("x"), completedOn("x"), completedOn("x"),
		failedOn("recursion"), failedOn("recursion"), failedOn("recursion"),
	)
	result := d.Detect("s1", events, now)
	assert.NotNil(t, result.Alert)
	assert.Equal(t, AlertRepeatedFailures, result.Alert.Type)
	assert.Equal(t, SeverityMedium, result.Alert.Severity)
	assert.Equal(t, "Repeated failures on topic: recursion (3 attempts)", result.Alert.Message)
	assert.Equal(t, []string{
		"Review recursion fundamentals",
		"Request concepts explanation",
		"Try related easier exercises",
	}, result.Alert.Recommendations)
}

func TestDetector_RepeatedFailuresNotAtTwo(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	events := detectorEvents(now,
		completedOn("x"), completedOn("x"), completedOn("x"),
		failedOn("recursion"), failedOn("recursion"),
	)
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
}

func TestDetector_LowScores(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	events := detectorEvents(now,
		quizScored(90), quizScored(55), quizScored(40), quizScored(59),
	)
	result := d.Detect("s1", events, now)
	assert.NotNil(t, result.Alert)
	assert.Equal(t, AlertLowScores, result.Alert.Type)
	assert.Equal(t, SeverityMedium, result.Alert.Severity)
	assert.Equal(t, "Three consecutive low scores (<60%)", result.Alert.Message)
	assert.Equal(t, []string{
		"Review basic concepts",
		"Use hints system more actively",
		"Focus on one concept at a time",
	}, result.Alert.Recommendations)
}

func TestDetector_LowScoresUsesThreeMostRecent(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// The latest graded event is passing, so the trailing run is broken.
	events := detectorEvents(now,
		quizScored(40), quizScored(40), quizScored(40), quizScored(75),
	)
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
}

func TestDetector_LowScoresNeedsThreeGraded(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	events := detectorEvents(now, quizScored(10), quizScored(10))
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
}

func TestDetector_PriorityOrder(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	// All three rules would match; completion_rate wins.
	events := detectorEvents(now,
		failedOn("recursion"), failedOn("recursion"), failedOn("recursion"),
		failedOn("recursion"), failedOn("recursion"),
		quizScored(10), quizScored(10), quizScored(10),
	)
	result := d.Detect("s1", events, now)
	assert.NotNil(t, result.Alert)
	assert.Equal(t, AlertCompletionRate, result.Alert.Type)
}

func TestDetector_IgnoresEventsOutsideWindow(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()
	old := now.Add(-8 * 24 * time.Hour)

	events := []LearningEvent{
		{StudentID: "s1", Topic: "a", Kind: KindExercise, Status: StatusFailed, Timestamp: old},
		{StudentID: "s1", Topic: "a", Kind: KindExercise, Status: StatusFailed, Timestamp: old},
		{StudentID: "s1", Topic: "a", Kind: KindExercise, Status: StatusFailed, Timestamp: old},
		{StudentID: "s1", Topic: "a", Kind: KindExercise, Status: StatusFailed, Timestamp: now.Add(-time.Hour)},
	}
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
	assert.Equal(t, 1, result.Evaluated)
}

func TestDetector_SkipsMalformedEvents(t *testing.T) {
	d := NewDetector()
	now := time.Now().UTC()

	events := []LearningEvent{
		{StudentID: "", Kind: KindQuiz, Score: 10, Timestamp: now.Add(-time.Hour)},
		{StudentID: "s1", Kind: "bogus", Timestamp: now.Add(-time.Hour)},
		{StudentID: "s1", Topic: "a", Kind: KindExercise, Status: StatusCompleted, Timestamp: now.Add(-time.Hour)},
	}
	result := d.Detect("s1", events, now)
	assert.Nil(t, result.Alert)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Evaluated)
}
