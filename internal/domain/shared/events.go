// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Progress events
	EventProgressUpdated EventType = "progress.updated"
	EventTopicMastered   EventType = "progress.topic_mastered"

	// Struggle events
	EventStruggleDetected EventType = "struggle.detected"

	// System events
	EventSyncCompleted EventType = "system.sync_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressUpdatedEvent is emitted after a learning event has been folded
// into a student's topic aggregate.
type ProgressUpdatedEvent struct {
	BaseEvent
	StudentID    string  `json:"student_id"`
	Topic        string  `json:"topic"`
	MasteryScore float64 `json:"mastery_score"`
	MasteryBand  string  `json:"mastery_band"`
	SourceEvent  string  `json:"source_event"` // e.g., "exercise", "quiz"
}

// Payload implements Event interface.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"topic":         e.Topic,
		"mastery_score": e.MasteryScore,
		"mastery_band":  e.MasteryBand,
		"source_event":  e.SourceEvent,
	}
}

// NewProgressUpdatedEvent creates a new ProgressUpdatedEvent.
func NewProgressUpdatedEvent(studentID, topic string, masteryScore float64, masteryBand, sourceEvent string) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{
		BaseEvent:    NewBaseEvent(EventProgressUpdated, studentID),
		StudentID:    studentID,
		Topic:        topic,
		MasteryScore: masteryScore,
		MasteryBand:  masteryBand,
		SourceEvent:  sourceEvent,
	}
}

// TopicMasteredEvent is emitted when a topic first reaches the mastered band.
type TopicMasteredEvent struct {
	BaseEvent
	StudentID    string  `json:"student_id"`
	Topic        string  `json:"topic"`
	MasteryScore float64 `json:"mastery_score"`
}

// Payload implements Event interface.
func (e TopicMasteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":    e.StudentID,
		"topic":         e.Topic,
		"mastery_score": e.MasteryScore,
	}
}

// NewTopicMasteredEvent creates a new TopicMasteredEvent.
func NewTopicMasteredEvent(studentID, topic string, masteryScore float64) TopicMasteredEvent {
	return TopicMasteredEvent{
		BaseEvent:    NewBaseEvent(EventTopicMastered, studentID),
		StudentID:    studentID,
		Topic:        topic,
		MasteryScore: masteryScore,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Struggle Events
// ═══════════════════════════════════════════════════════════════════════════

// StruggleDetectedEvent is emitted when a struggle rule matches for a student.
type StruggleDetectedEvent struct {
	BaseEvent
	StudentID       string   `json:"student_id"`
	AlertType       string   `json:"alert_type"`
	Severity        string   `json:"severity"`
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations"`
}

// Payload implements Event interface.
func (e StruggleDetectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":      e.StudentID,
		"alert_type":      e.AlertType,
		"severity":        e.Severity,
		"message":         e.Message,
		"recommendations": e.Recommendations,
	}
}

// NewStruggleDetectedEvent creates a new StruggleDetectedEvent.
func NewStruggleDetectedEvent(studentID, alertType, severity, message string, recommendations []string) StruggleDetectedEvent {
	return StruggleDetectedEvent{
		BaseEvent:       NewBaseEvent(EventStruggleDetected, studentID),
		StudentID:       studentID,
		AlertType:       alertType,
		Severity:        severity,
		Message:         message,
		Recommendations: recommendations,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
