package progress

import (
	"fmt"
	"sort"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRUGGLE DETECTION
// ══════════════════════════════════════════════════════════════════════════════

// AlertType identifies which struggle rule fired.
type AlertType string

const (
	AlertCompletionRate   AlertType = "completion_rate"
	AlertRepeatedFailures AlertType = "repeated_failures"
	AlertLowScores        AlertType = "low_scores"
)

// IsValid checks if the alert type is one of the known types.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertCompletionRate, AlertRepeatedFailures, AlertLowScores:
		return true
	}
	return false
}

// String returns the string representation.
func (t AlertType) String() string {
	return string(t)
}

// Severity indicates how urgently a mentor should act on an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// Alert is a struggle signal for a student. A detection run produces at most
// one alert; the rule order below decides which one wins when several match.
type Alert struct {
	// ID is assigned at persistence time, not by the detector.
	ID string

	StudentID shared.StudentID
	Type      AlertType
	Severity  Severity
	Message   string

	// Recommendations are ordered remediation steps. The texts are a fixed
	// contract with the mentor UI and notification templates.
	Recommendations []string

	Timestamp time.Time
}

// RecommendationsFor returns the remediation steps for an alert type. The
// topic argument is only used for repeated_failures.
func RecommendationsFor(alertType AlertType, topic shared.Topic) []string {
	switch alertType {
	case AlertCompletionRate:
		return []string{
			"Consider easier exercises",
			"Review foundational concepts",
			"Increase hint usage",
		}
	case AlertRepeatedFailures:
		return []string{
			fmt.Sprintf("Review %s fundamentals", topic),
			"Request concepts explanation",
			"Try related easier exercises",
		}
	case AlertLowScores:
		return []string{
			"Review basic concepts",
			"Use hints system more actively",
			"Focus on one concept at a time",
		}
	}
	return nil
}

// Detector evaluates struggle rules over a student's recent events.
// The zero value is not usable; construct with NewDetector.
type Detector struct {
	// Window is how far back events are considered.
	Window time.Duration

	// MinExerciseAttempts is the minimum number of in-window exercise
	// attempts before the completion rate rule applies.
	MinExerciseAttempts int

	// CompletionRateFloor triggers the completion rule strictly below it.
	CompletionRateFloor float64

	// FailureThreshold is the per-topic failure count that triggers the
	// repeated failures rule.
	FailureThreshold int

	// LowScoreCeiling triggers the low scores rule strictly below it.
	LowScoreCeiling float64

	// LowScoreRun is how many trailing graded events must all be low.
	LowScoreRun int
}

// NewDetector creates a detector with the production thresholds.
func NewDetector() *Detector {
	return &Detector{
		Window:              7 * 24 * time.Hour,
		MinExerciseAttempts: 5,
		CompletionRateFloor: 0.5,
		FailureThreshold:    3,
		LowScoreCeiling:     60,
		LowScoreRun:         3,
	}
}

// DetectionResult is the outcome of a detection run. Alert is nil when no
// rule matched; that is the normal case, not an error.
type DetectionResult struct {
	Alert *Alert

	// Evaluated is how many in-window events were considered.
	Evaluated int

	// Skipped is how many events were dropped as malformed. Callers should
	// log a nonzero value.
	Skipped int
}

// Detect runs the struggle rules over the given events for one student.
// Events outside the trailing window relative to now are ignored. Rules are
// evaluated in fixed priority order; the first match wins:
//
//  1. completion_rate (high)
//  2. repeated_failures (medium)
//  3. low_scores (medium)
func (d *Detector) Detect(studentID shared.StudentID, events []LearningEvent, now time.Time) DetectionResult {
	cutoff := now.Add(-d.Window)

	var result DetectionResult
	windowed := make([]LearningEvent, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			result.Skipped++
			continue
		}
		if ev.Timestamp.Before(cutoff) || ev.Timestamp.After(now) {
			continue
		}
		windowed = append(windowed, ev)
	}
	result.Evaluated = len(windowed)

	if alert := d.checkCompletionRate(studentID, windowed, now); alert != nil {
		result.Alert = alert
		return result
	}
	if alert := d.checkRepeatedFailures(studentID, windowed, now); alert != nil {
		result.Alert = alert
		return result
	}
	if alert := d.checkLowScores(studentID, windowed, now); alert != nil {
		result.Alert = alert
		return result
	}
	return result
}

// checkCompletionRate fires when the student has attempted enough exercises
// and completed strictly less than half of them.
func (d *Detector) checkCompletionRate(studentID shared.StudentID, events []LearningEvent, now time.Time) *Alert {
	attempted := 0
	completed := 0
	for _, ev := range events {
		if ev.Kind != KindExercise {
			continue
		}
		attempted++
		if ev.Status == StatusCompleted {
			completed++
		}
	}
	if attempted < d.MinExerciseAttempts {
		return nil
	}

	rate := float64(completed) / float64(attempted)
	if rate >= d.CompletionRateFloor {
		return nil
	}

	return &Alert{
		StudentID:       studentID,
		Type:            AlertCompletionRate,
		Severity:        SeverityHigh,
		Message:         fmt.Sprintf("Low completion rate: %.0f%% over last 7 days", rate*100),
		Recommendations: RecommendationsFor(AlertCompletionRate, ""),
		Timestamp:       now,
	}
}

// checkRepeatedFailures fires for the first topic (in order of appearance)
// that accumulated enough failed exercise attempts in the window.
func (d *Detector) checkRepeatedFailures(studentID shared.StudentID, events []LearningEvent, now time.Time) *Alert {
	failures := make(map[shared.Topic]int)
	var order []shared.Topic
	for _, ev := range events {
		if !ev.IsFailed() {
			continue
		}
		if _, seen := failures[ev.Topic]; !seen {
			order = append(order, ev.Topic)
		}
		failures[ev.Topic]++
	}

	for _, topic := range order {
		count := failures[topic]
		if count < d.FailureThreshold {
			continue
		}
		return &Alert{
			StudentID:       studentID,
			Type:            AlertRepeatedFailures,
			Severity:        SeverityMedium,
			Message:         fmt.Sprintf("Repeated failures on topic: %s (%d attempts)", topic, count),
			Recommendations: RecommendationsFor(AlertRepeatedFailures, topic),
			Timestamp:       now,
		}
	}
	return nil
}

// checkLowScores fires when the student's three most recent graded results
// in the window are all below the ceiling. Fewer than three graded events
// never fire.
func (d *Detector) checkLowScores(studentID shared.StudentID, events []LearningEvent, now time.Time) *Alert {
	graded := make([]LearningEvent, 0, len(events))
	for _, ev := range events {
		if ev.Kind.IsGraded() {
			graded = append(graded, ev)
		}
	}
	if len(graded) < d.LowScoreRun {
		return nil
	}

	sort.SliceStable(graded, func(i, j int) bool {
		return graded[i].Timestamp.Before(graded[j].Timestamp)
	})
	recent := graded[len(graded)-d.LowScoreRun:]

	for _, ev := range recent {
		if ev.Score >= d.LowScoreCeiling {
			return nil
		}
	}

	return &Alert{
		StudentID:       studentID,
		Type:            AlertLowScores,
		Severity:        SeverityMedium,
		Message:         "Three consecutive low scores (<60%)",
		Recommendations: RecommendationsFor(AlertLowScores, ""),
		Timestamp:       now,
	}
}
