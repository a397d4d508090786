// Package service contains infrastructure implementations of application
// layer ports, such as alert notifiers.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/learnflow/progress-engine/internal/application/eventhandler"
	"github.com/learnflow/progress-engine/pkg/circuitbreaker"
	"github.com/learnflow/progress-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// WebhookNotifierConfig configures the webhook notifier.
type WebhookNotifierConfig struct {
	// URL is the endpoint notifications are POSTed to.
	URL string

	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string

	// RequestTimeout bounds each delivery attempt.
	RequestTimeout time.Duration
}

// DefaultWebhookNotifierConfig returns sensible defaults for the given URL.
func DefaultWebhookNotifierConfig(url string) WebhookNotifierConfig {
	return WebhookNotifierConfig{
		URL:            url,
		RequestTimeout: 10 * time.Second,
	}
}

// WebhookNotifier delivers struggle notifications to an HTTP endpoint,
// typically a mentor dashboard or a chat integration. Deliveries go through
// a circuit breaker so a dead endpoint cannot pile up blocked goroutines,
// and transient failures are retried with backoff.
type WebhookNotifier struct {
	config  WebhookNotifierConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(config WebhookNotifierConfig, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	breakerLog := logger.With("notifier", "webhook")
	return &WebhookNotifier{
		config: config,
		client: &http.Client{Timeout: config.RequestTimeout},
		breaker: circuitbreaker.WebhookBreaker(func(name string, from, to circuitbreaker.State) {
			breakerLog.Warn("circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(200*time.Millisecond),
			retry.WithMaxDelay(2*time.Second),
		),
		logger: breakerLog,
	}
}

// webhookPayload is the wire format delivered to the endpoint.
type webhookPayload struct {
	StudentID       string    `json:"student_id"`
	AlertType       string    `json:"alert_type"`
	Severity        string    `json:"severity"`
	Message         string    `json:"message"`
	Recommendations []string  `json:"recommendations"`
	DetectedAt      time.Time `json:"detected_at"`
}

// Notify implements eventhandler.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, notification eventhandler.StruggleNotification) error {
	body, err := json.Marshal(webhookPayload{
		StudentID:       notification.StudentID,
		AlertType:       notification.AlertType,
		Severity:        notification.Severity,
		Message:         notification.Message,
		Recommendations: notification.Recommendations,
		DetectedAt:      notification.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("webhook: failed to marshal notification: %w", err)
	}

	err = n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, func(ctx context.Context) error {
			return n.post(ctx, body)
		})
	})
	if err != nil {
		n.logger.Error("webhook delivery failed",
			"student_id", notification.StudentID,
			"alert_type", notification.AlertType,
			"error", err,
		)
		return err
	}

	n.logger.Debug("webhook delivered",
		"student_id", notification.StudentID,
		"alert_type", notification.AlertType,
	)
	return nil
}

// post performs a single delivery attempt. Server-side and transport errors
// are marked retryable; client errors are permanent.
func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.AuthToken)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode))
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (n *WebhookNotifier) Breaker() *circuitbreaker.CircuitBreaker {
	return n.breaker
}
