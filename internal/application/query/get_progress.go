// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS QUERIES
// Read side of the progress hub: per-topic aggregates, student overviews and
// on-demand struggle checks. Never mutates state.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateCache is a read-through cache for topic aggregates. Any Get error
// is treated as a miss; Set is best-effort.
type AggregateCache interface {
	Get(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error)
	Set(ctx context.Context, agg *progress.Aggregate) error
}

// TopicProgress is one topic row in a student overview.
type TopicProgress struct {
	Topic              string    `json:"topic"`
	MasteryScore       float64   `json:"mastery_score"`
	MasteryBand        string    `json:"mastery_band"`
	CompletionRate     float64   `json:"completion_rate"`
	ExercisesCompleted int       `json:"exercises_completed"`
	TotalExercises     int       `json:"total_exercises"`
	AvgQuizScore       float64   `json:"avg_quiz_score"`
	AvgCodeQuality     float64   `json:"avg_code_quality"`
	LastActivity       time.Time `json:"last_activity"`
}

// StudentOverview summarizes a student's progress across all topics.
type StudentOverview struct {
	StudentID        string          `json:"student_id"`
	Topics           []TopicProgress `json:"topics"`
	TopicsMastered   int             `json:"topics_mastered"`
	TopicsStruggling int             `json:"topics_struggling"`
	AverageMastery   float64         `json:"average_mastery"`
	TotalEvents      int             `json:"total_events"`
	ConsistencyScore float64         `json:"consistency_score"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetProgressHandler serves progress reads.
type GetProgressHandler struct {
	aggregates progress.AggregateRepository
	eventLog   progress.EventLogRepository
	alerts     progress.AlertRepository
	cache      AggregateCache
	detector   *progress.Detector
	logger     *slog.Logger
}

// NewGetProgressHandler creates a new GetProgressHandler. The cache is
// optional; pass nil to read straight from the repository.
func NewGetProgressHandler(
	aggregates progress.AggregateRepository,
	eventLog progress.EventLogRepository,
	alerts progress.AlertRepository,
	cache AggregateCache,
	logger *slog.Logger,
) *GetProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &GetProgressHandler{
		aggregates: aggregates,
		eventLog:   eventLog,
		alerts:     alerts,
		cache:      cache,
		detector:   progress.NewDetector(),
		logger:     logger.With("handler", "get_progress"),
	}
}

// SetStruggleWindow overrides the sliding window consulted by DetectStruggle.
func (h *GetProgressHandler) SetStruggleWindow(window time.Duration) {
	if window > 0 {
		h.detector.Window = window
	}
}

// GetAggregate returns the aggregate for a student and topic.
// Returns shared.ErrAggregateNotFound when no events were ever recorded for
// the pair.
func (h *GetProgressHandler) GetAggregate(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error) {
	if h.cache != nil {
		if agg, err := h.cache.Get(ctx, studentID, topic); err == nil && agg != nil {
			return agg, nil
		}
	}

	agg, err := h.aggregates.Get(ctx, studentID, topic)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, agg); err != nil {
			h.logger.Debug("failed to cache aggregate",
				"student_id", studentID.String(), "topic", topic.String(), "error", err)
		}
	}

	return agg, nil
}

// GetStudentOverview returns the student's progress across all topics.
// Returns shared.ErrStudentNotFound for students with no recorded history.
func (h *GetProgressHandler) GetStudentOverview(ctx context.Context, studentID shared.StudentID) (*StudentOverview, error) {
	aggs, err := h.aggregates.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to list aggregates: %w", err)
	}
	if len(aggs) == 0 {
		return nil, shared.ErrStudentNotFound
	}

	totalEvents, err := h.eventLog.CountByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to count events: %w", err)
	}

	overview := &StudentOverview{
		StudentID: studentID.String(),
		Topics:    make([]TopicProgress, 0, len(aggs)),
	}

	var masterySum float64
	for _, agg := range aggs {
		overview.Topics = append(overview.Topics, TopicProgress{
			Topic:              agg.Topic.String(),
			MasteryScore:       agg.MasteryScore,
			MasteryBand:        agg.Band().String(),
			CompletionRate:     agg.CompletionRate(),
			ExercisesCompleted: agg.ExercisesCompleted,
			TotalExercises:     agg.TotalExercises,
			AvgQuizScore:       agg.AvgQuizScore,
			AvgCodeQuality:     agg.AvgCodeQuality,
			LastActivity:       agg.LastActivity,
		})

		masterySum += agg.MasteryScore

		switch agg.Band() {
		case progress.BandMastered:
			overview.TopicsMastered++
		case progress.BandBeginner:
			overview.TopicsStruggling++
		}

		// All aggregates carry the same cross-topic consistency; the most
		// recently folded one is authoritative.
		if agg.ConsistencyScore > overview.ConsistencyScore {
			overview.ConsistencyScore = agg.ConsistencyScore
		}
	}

	overview.AverageMastery = masterySum / float64(len(aggs))
	overview.TotalEvents = totalEvents

	return overview, nil
}

// DetectStruggle runs struggle detection over the student's recent history
// without persisting anything. Returns nil when the student is doing fine.
func (h *GetProgressHandler) DetectStruggle(ctx context.Context, studentID shared.StudentID) (*progress.Alert, error) {
	now := time.Now().UTC()

	events, err := h.eventLog.ListByStudentSince(ctx, studentID, now.Add(-h.detector.Window))
	if err != nil {
		return nil, fmt.Errorf("get_progress: failed to load event history: %w", err)
	}

	detection := h.detector.Detect(studentID, events, now)
	if detection.Skipped > 0 {
		h.logger.Warn("skipped malformed events during detection",
			"student_id", studentID.String(), "skipped", detection.Skipped)
	}

	return detection.Alert, nil
}

// ListAlerts returns the student's most recent persisted alerts.
func (h *GetProgressHandler) ListAlerts(ctx context.Context, studentID shared.StudentID, limit int) ([]*progress.Alert, error) {
	return h.alerts.ListByStudent(ctx, studentID, limit)
}
