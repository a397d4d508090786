// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STRUGGLE DETECTED HANDLER
// Reacts to struggle alerts raised while folding learning events:
// - Notifies the downstream channel (mentor dashboard, messenger, webhook)
// - Suppresses repeat notifications for the same student within a cooldown
//
// The alert itself is already persisted by the command side; this handler
// only deals with telling someone about it.
// ═══════════════════════════════════════════════════════════════════════════

// StruggleNotification is the message passed to the notifier.
type StruggleNotification struct {
	StudentID       string
	AlertType       string
	Severity        string
	Message         string
	Recommendations []string
	DetectedAt      time.Time
}

// Notifier delivers struggle notifications to an external channel.
type Notifier interface {
	Notify(ctx context.Context, notification StruggleNotification) error
}

// LogNotifier writes notifications to the structured log. Used as the
// default sink when no external channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification StruggleNotification) error {
	n.logger.Warn("student struggling",
		"student_id", notification.StudentID,
		"alert_type", notification.AlertType,
		"severity", notification.Severity,
		"message", notification.Message,
		"recommendations", notification.Recommendations,
	)
	return nil
}

// StruggleConfig contains configuration for the handler.
type StruggleConfig struct {
	// NotificationCooldown is the minimum interval between notifications
	// for the same student. Detection runs on every recorded event, so
	// without a cooldown a struggling student would trigger a message per
	// submission.
	NotificationCooldown time.Duration

	// NotifyTimeout bounds each delivery attempt.
	NotifyTimeout time.Duration
}

// DefaultStruggleConfig returns the default configuration.
func DefaultStruggleConfig() StruggleConfig {
	return StruggleConfig{
		NotificationCooldown: 6 * time.Hour,
		NotifyTimeout:        10 * time.Second,
	}
}

// OnStruggleDetectedHandler handles struggle.detected events.
type OnStruggleDetectedHandler struct {
	notifier Notifier
	logger   *slog.Logger
	config   StruggleConfig

	mu           sync.Mutex
	lastNotified map[string]time.Time
}

// NewOnStruggleDetectedHandler creates a new handler.
func NewOnStruggleDetectedHandler(notifier Notifier, logger *slog.Logger, config StruggleConfig) *OnStruggleDetectedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if config.NotificationCooldown <= 0 {
		config = DefaultStruggleConfig()
	}

	return &OnStruggleDetectedHandler{
		notifier:     notifier,
		logger:       logger.With("handler", "on_struggle_detected"),
		config:       config,
		lastNotified: make(map[string]time.Time),
	}
}

// Register subscribes the handler on the bus.
func (h *OnStruggleDetectedHandler) Register(subscriber shared.EventSubscriber) error {
	return subscriber.Subscribe(shared.EventStruggleDetected, h.Handle)
}

// Handle processes a struggle.detected event.
// Implements shared.EventHandler.
func (h *OnStruggleDetectedHandler) Handle(event shared.Event) error {
	notification, err := notificationFrom(event)
	if err != nil {
		return err
	}

	if !h.shouldNotify(notification.StudentID, notification.DetectedAt) {
		h.logger.Debug("notification suppressed by cooldown",
			"student_id", notification.StudentID,
			"alert_type", notification.AlertType,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.NotifyTimeout)
	defer cancel()

	if err := h.notifier.Notify(ctx, notification); err != nil {
		// Roll back the cooldown so the next detection retries delivery.
		h.clearCooldown(notification.StudentID)
		return fmt.Errorf("on_struggle_detected: notify failed: %w", err)
	}

	return nil
}

// shouldNotify checks and arms the per-student cooldown.
func (h *OnStruggleDetectedHandler) shouldNotify(studentID string, at time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.lastNotified[studentID]; ok {
		if at.Sub(last) < h.config.NotificationCooldown {
			return false
		}
	}

	h.lastNotified[studentID] = at
	return true
}

func (h *OnStruggleDetectedHandler) clearCooldown(studentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastNotified, studentID)
}

// notificationFrom extracts the notification from a typed or remote event.
// Events replayed from Redis arrive as generic payload maps.
func notificationFrom(event shared.Event) (StruggleNotification, error) {
	if typed, ok := event.(shared.StruggleDetectedEvent); ok {
		return StruggleNotification{
			StudentID:       typed.StudentID,
			AlertType:       typed.AlertType,
			Severity:        typed.Severity,
			Message:         typed.Message,
			Recommendations: typed.Recommendations,
			DetectedAt:      typed.OccurredAt(),
		}, nil
	}

	payload := event.Payload()
	notification := StruggleNotification{
		StudentID:  event.AggregateID(),
		DetectedAt: event.OccurredAt(),
	}

	var ok bool
	if notification.AlertType, ok = payload["alert_type"].(string); !ok {
		return StruggleNotification{}, fmt.Errorf("on_struggle_detected: malformed payload for %s", event.AggregateID())
	}
	notification.Severity, _ = payload["severity"].(string)
	notification.Message, _ = payload["message"].(string)

	// JSON round-trips turn []string into []interface{}.
	switch recs := payload["recommendations"].(type) {
	case []string:
		notification.Recommendations = recs
	case []interface{}:
		for _, rec := range recs {
			if s, ok := rec.(string); ok {
				notification.Recommendations = append(notification.Recommendations, s)
			}
		}
	}

	return notification, nil
}
