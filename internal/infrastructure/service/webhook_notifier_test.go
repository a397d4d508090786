package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/application/eventhandler"
)

func sampleNotification() eventhandler.StruggleNotification {
	return eventhandler.StruggleNotification{
		StudentID:       "s1",
		AlertType:       "completion_rate",
		Severity:        "high",
		Message:         "Low completion rate: 40% over last 7 days",
		Recommendations: []string{"Review fundamentals"},
		DetectedAt:      time.Now().UTC(),
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := DefaultWebhookNotifierConfig(server.URL)
	cfg.AuthToken = "secret"
	notifier := NewWebhookNotifier(cfg, nil)

	err := notifier.Notify(context.Background(), sampleNotification())

	assert.NoError(t, err)
	assert.Equal(t, "s1", received.StudentID)
	assert.Equal(t, "completion_rate", received.AlertType)
}

func TestWebhookNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(DefaultWebhookNotifierConfig(server.URL), nil)

	err := notifier.Notify(context.Background(), sampleNotification())

	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifierDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(DefaultWebhookNotifierConfig(server.URL), nil)

	err := notifier.Notify(context.Background(), sampleNotification())

	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
