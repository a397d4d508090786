// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/pkg/keylock"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVENT COMMAND
// Records a learning event, folds it into the student's topic aggregate, and
// runs struggle detection over the student's recent history.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventCommand contains the data to record a learning event.
type RecordEventCommand struct {
	// StudentID is the ID of the student.
	StudentID string

	// Topic is the topic the event belongs to.
	Topic string

	// Kind is the event kind: exercise, quiz or code_review.
	Kind string

	// Status is the outcome for exercise events: completed or failed.
	Status string

	// Score is the grade for quiz and code_review events, 0-100.
	Score float64

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// toEvent builds the domain event. The event ID is assigned here so retries
// of the same command produce distinct rows.
func (c RecordEventCommand) toEvent() progress.LearningEvent {
	return progress.LearningEvent{
		ID:        uuid.NewString(),
		StudentID: shared.StudentID(c.StudentID),
		Topic:     shared.Topic(c.Topic),
		Kind:      progress.EventKind(c.Kind),
		Status:    progress.EventStatus(c.Status),
		Score:     c.Score,
		Timestamp: c.Timestamp,
	}
}

// RecordEventResult contains the result of recording a learning event.
type RecordEventResult struct {
	// EventID is the assigned ID of the stored event.
	EventID string

	// Aggregate is the updated topic aggregate after the fold.
	Aggregate *progress.Aggregate

	// Alert is the struggle alert raised by this event, nil if none.
	Alert *progress.Alert

	// Events contains the domain events published.
	Events []shared.Event

	// RecordedAt is when the event was recorded.
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordEventHandler handles the RecordEventCommand. Folds for the same
// student are serialized with striped locks; different students proceed in
// parallel.
type RecordEventHandler struct {
	aggregates progress.AggregateRepository
	eventLog   progress.EventLogRepository
	alerts     progress.AlertRepository
	publisher  shared.EventPublisher
	detector   *progress.Detector
	locks      *keylock.Striped
	logger     *slog.Logger
}

// NewRecordEventHandler creates a new RecordEventHandler.
func NewRecordEventHandler(
	aggregates progress.AggregateRepository,
	eventLog progress.EventLogRepository,
	alerts progress.AlertRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *RecordEventHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecordEventHandler{
		aggregates: aggregates,
		eventLog:   eventLog,
		alerts:     alerts,
		publisher:  publisher,
		detector:   progress.NewDetector(),
		locks:      keylock.New(keylock.DefaultStripes),
		logger:     logger.With("handler", "record_event"),
	}
}

// SetStruggleWindow overrides the sliding window consulted by struggle
// detection after each write.
func (h *RecordEventHandler) SetStruggleWindow(window time.Duration) {
	if window > 0 {
		h.detector.Window = window
	}
}

// Handle executes the record event command. Validation failures leave all
// state untouched.
func (h *RecordEventHandler) Handle(ctx context.Context, cmd RecordEventCommand) (*RecordEventResult, error) {
	event := cmd.toEvent()
	if err := event.Validate(); err != nil {
		return nil, err
	}

	result := &RecordEventResult{
		EventID:    event.ID,
		RecordedAt: time.Now().UTC(),
		Events:     make([]shared.Event, 0, 2),
	}

	var alert *progress.Alert
	var handleErr error

	h.locks.WithLock(cmd.StudentID, func() {
		// Append first: the lifetime count after the append drives the
		// consistency score.
		totalEvents, err := h.eventLog.Append(ctx, event)
		if err != nil {
			handleErr = fmt.Errorf("record_event: failed to append event: %w", err)
			return
		}

		agg, err := h.aggregates.Get(ctx, event.StudentID, event.Topic)
		if err != nil {
			if !shared.IsNotFound(err) {
				handleErr = fmt.Errorf("record_event: failed to load aggregate: %w", err)
				return
			}
			agg = progress.NewAggregate(event.StudentID, event.Topic)
		}

		previousBand := agg.Band()
		agg.Apply(event, totalEvents)

		if err := h.aggregates.Save(ctx, agg); err != nil {
			handleErr = fmt.Errorf("record_event: failed to save aggregate: %w", err)
			return
		}

		result.Aggregate = agg
		result.Events = append(result.Events, h.progressEvent(cmd, agg))

		if previousBand != progress.BandMastered && agg.Band() == progress.BandMastered {
			result.Events = append(result.Events,
				shared.NewTopicMasteredEvent(cmd.StudentID, cmd.Topic, agg.MasteryScore))
		}

		alert, err = h.detect(ctx, event.StudentID)
		if err != nil {
			// Detection failures never roll back a recorded event.
			h.logger.Warn("struggle detection failed",
				"student_id", cmd.StudentID, "error", err)
		}
	})
	if handleErr != nil {
		return nil, handleErr
	}

	if alert != nil {
		result.Alert = alert
		result.Events = append(result.Events, shared.NewStruggleDetectedEvent(
			alert.StudentID.String(),
			alert.Type.String(),
			alert.Severity.String(),
			alert.Message,
			alert.Recommendations,
		))
	}

	h.publish(result.Events)

	if cmd.CorrelationID != "" {
		h.logger.Debug("event recorded",
			"event_id", result.EventID,
			"student_id", cmd.StudentID,
			"correlation_id", cmd.CorrelationID,
		)
	}

	return result, nil
}

// progressEvent builds the progress.updated event for the fold.
func (h *RecordEventHandler) progressEvent(cmd RecordEventCommand, agg *progress.Aggregate) shared.Event {
	return shared.NewProgressUpdatedEvent(
		cmd.StudentID,
		cmd.Topic,
		agg.MasteryScore,
		agg.Band().String(),
		cmd.Kind,
	)
}

// detect runs struggle detection over the student's recent history and
// persists any raised alert.
func (h *RecordEventHandler) detect(ctx context.Context, studentID shared.StudentID) (*progress.Alert, error) {
	now := time.Now().UTC()

	events, err := h.eventLog.ListByStudentSince(ctx, studentID, now.Add(-h.detector.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to load event history: %w", err)
	}

	detection := h.detector.Detect(studentID, events, now)
	if detection.Skipped > 0 {
		h.logger.Warn("skipped malformed events during detection",
			"student_id", studentID.String(), "skipped", detection.Skipped)
	}
	if detection.Alert == nil {
		return nil, nil
	}

	alert := detection.Alert
	alert.ID = uuid.NewString()

	if err := h.alerts.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	return alert, nil
}

// publish sends domain events. Publish failures are logged, not returned:
// the write already succeeded.
func (h *RecordEventHandler) publish(events []shared.Event) {
	for _, event := range events {
		if err := h.publisher.Publish(event); err != nil {
			h.logger.Error("failed to publish event",
				"event_type", event.EventType(), "error", err)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH COMMAND
// For recording multiple events at once (e.g., backfill from an LMS export).
// ══════════════════════════════════════════════════════════════════════════════

// RecordBatchCommand contains multiple learning events to record.
type RecordBatchCommand struct {
	Events        []RecordEventCommand
	CorrelationID string
}

// RecordBatchResult contains results for batch recording.
type RecordBatchResult struct {
	TotalCount   int
	SuccessCount int
	FailedCount  int
	Results      []*RecordEventResult
	Errors       map[int]error
}

// RecordBatchHandler handles batch event recording.
type RecordBatchHandler struct {
	handler *RecordEventHandler
}

// NewRecordBatchHandler creates a new batch handler.
func NewRecordBatchHandler(handler *RecordEventHandler) *RecordBatchHandler {
	return &RecordBatchHandler{handler: handler}
}

// Handle records each event independently. One malformed event fails its own
// slot without aborting the rest of the batch.
func (h *RecordBatchHandler) Handle(ctx context.Context, cmd RecordBatchCommand) (*RecordBatchResult, error) {
	result := &RecordBatchResult{
		TotalCount: len(cmd.Events),
		Results:    make([]*RecordEventResult, 0, len(cmd.Events)),
		Errors:     make(map[int]error),
	}

	for i, eventCmd := range cmd.Events {
		if eventCmd.CorrelationID == "" {
			eventCmd.CorrelationID = cmd.CorrelationID
		}

		eventResult, err := h.handler.Handle(ctx, eventCmd)
		if err != nil {
			result.FailedCount++
			result.Errors[i] = err
			continue
		}

		result.SuccessCount++
		result.Results = append(result.Results, eventResult)
	}

	return result, nil
}
