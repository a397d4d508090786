package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

type captureNotifier struct {
	sent []StruggleNotification
	fail bool
}

func (n *captureNotifier) Notify(_ context.Context, notification StruggleNotification) error {
	if n.fail {
		return errors.New("channel down")
	}
	n.sent = append(n.sent, notification)
	return nil
}

func struggleEvent(studentID string) shared.StruggleDetectedEvent {
	return shared.NewStruggleDetectedEvent(
		studentID,
		"completion_rate",
		"high",
		"Low completion rate: 20% over last 7 days",
		[]string{"Consider easier exercises", "Review foundational concepts", "Increase hint usage"},
	)
}

func TestOnStruggleDetected_Notifies(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnStruggleDetectedHandler(notifier, nil, DefaultStruggleConfig())

	assert.NoError(t, handler.Handle(struggleEvent("s1")))

	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, "s1", notifier.sent[0].StudentID)
	assert.Equal(t, "completion_rate", notifier.sent[0].AlertType)
	assert.Len(t, notifier.sent[0].Recommendations, 3)
}

func TestOnStruggleDetected_CooldownSuppressesRepeat(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnStruggleDetectedHandler(notifier, nil, StruggleConfig{
		NotificationCooldown: time.Hour,
		NotifyTimeout:        time.Second,
	})

	assert.NoError(t, handler.Handle(struggleEvent("s1")))
	assert.NoError(t, handler.Handle(struggleEvent("s1")))
	assert.Len(t, notifier.sent, 1)

	// A different student is unaffected by the cooldown.
	assert.NoError(t, handler.Handle(struggleEvent("s2")))
	assert.Len(t, notifier.sent, 2)
}

func TestOnStruggleDetected_FailedDeliveryRetriesNextTime(t *testing.T) {
	notifier := &captureNotifier{fail: true}
	handler := NewOnStruggleDetectedHandler(notifier, nil, DefaultStruggleConfig())

	assert.Error(t, handler.Handle(struggleEvent("s1")))

	// The cooldown was rolled back, so the next detection delivers.
	notifier.fail = false
	assert.NoError(t, handler.Handle(struggleEvent("s1")))
	assert.Len(t, notifier.sent, 1)
}

func TestOnStruggleDetected_RemotePayload(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewOnStruggleDetectedHandler(notifier, nil, DefaultStruggleConfig())

	// Events replayed from Redis only expose the payload map.
	event := remotePayloadEvent{
		payload: map[string]interface{}{
			"alert_type":      "low_scores",
			"severity":        "medium",
			"message":         "Three consecutive low scores (<60%)",
			"recommendations": []interface{}{"Review basic concepts", "Use hints system more actively"},
		},
	}

	assert.NoError(t, handler.Handle(event))
	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, "low_scores", notifier.sent[0].AlertType)
	assert.Equal(t, []string{"Review basic concepts", "Use hints system more actively"}, notifier.sent[0].Recommendations)
}

type remotePayloadEvent struct {
	payload map[string]interface{}
}

func (e remotePayloadEvent) EventType() shared.EventType { return shared.EventStruggleDetected }
func (e remotePayloadEvent) OccurredAt() time.Time       { return time.Now().UTC() }
func (e remotePayloadEvent) AggregateID() string         { return "s-remote" }
func (e remotePayloadEvent) Payload() map[string]interface{} {
	return e.payload
}
