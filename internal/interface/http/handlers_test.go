package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/learnflow/progress-engine/internal/application/command"
	"github.com/learnflow/progress-engine/internal/application/query"
	"github.com/learnflow/progress-engine/internal/infrastructure/messaging"
	"github.com/learnflow/progress-engine/internal/infrastructure/persistence/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store := memory.NewStore()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})

	recordHandler := command.NewRecordEventHandler(store, store, store.Alerts(), bus, nil)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0

	return NewServer(cfg, Dependencies{
		RecordEventHandler: recordHandler,
		RecordBatchHandler: command.NewRecordBatchHandler(recordHandler),
		GetProgressHandler: query.NewGetProgressHandler(store, store, store.Alerts(), nil, nil),
	})
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	s.buildMiddlewareChain(s.router).ServeHTTP(rec, req)
	return rec
}

func eventBody(studentID, topic, kind, status string, score float64) string {
	return fmt.Sprintf(
		`{"student_id":%q,"topic":%q,"type":%q,"status":%q,"score":%g,"timestamp":%q}`,
		studentID, topic, kind, status, score, time.Now().UTC().Format(time.RFC3339),
	)
}

func TestHandleRecordEvent(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/events",
		eventBody("s1", "goroutines", "quiz", "", 85))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	// 0.3*85 quiz weight plus 0.1*5 consistency.
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["event_id"])
	assert.Equal(t, 26.0, data["mastery_score"])
	assert.Equal(t, "Beginner", data["mastery_band"])
}

func TestHandleRecordEvent_ValidationError(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/events",
		eventBody("s1", "goroutines", "quiz", "", 150))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "validation_error", resp.Error.Code)
}

func TestHandleRecordEvent_MalformedBody(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/events", `{"student_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRecordBatch_PartialFailure(t *testing.T) {
	server := newTestServer(t)

	body := fmt.Sprintf(`{"events":[%s,%s]}`,
		eventBody("s1", "graphs", "quiz", "", 70),
		eventBody("", "graphs", "quiz", "", 70),
	)

	rec := doRequest(server, http.MethodPost, "/api/v1/events/batch", body)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["recorded"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestHandleRecordBatch_TooLarge(t *testing.T) {
	server := newTestServer(t)
	server.config.MaxBatchEvents = 2

	body := fmt.Sprintf(`{"events":[%s,%s,%s]}`,
		eventBody("s1", "graphs", "quiz", "", 70),
		eventBody("s1", "graphs", "quiz", "", 75),
		eventBody("s1", "graphs", "quiz", "", 80),
	)

	rec := doRequest(server, http.MethodPost, "/api/v1/events/batch", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "batch_too_large", resp.Error.Code)
}

func TestHandleGetTopicProgress(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodPost, "/api/v1/events",
		eventBody("s1", "goroutines", "exercise", "completed", 0))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(server, http.MethodGet, "/api/v1/students/s1/progress/goroutines", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["exercises_completed"])
	assert.Equal(t, 1.0, data["completion_rate"])
}

func TestHandleGetTopicProgress_NotFound(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodGet, "/api/v1/students/nobody/progress/graphs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetOverview(t *testing.T) {
	server := newTestServer(t)

	for _, topic := range []string{"graphs", "sorting"} {
		rec := doRequest(server, http.MethodPost, "/api/v1/events",
			eventBody("s1", topic, "quiz", "", 80))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(server, http.MethodGet, "/api/v1/students/s1/progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Len(t, data["topics"], 2)
	assert.Equal(t, float64(2), data["total_events"])
}

func TestHandleDetectStruggle(t *testing.T) {
	server := newTestServer(t)

	// Five failed attempts trip the completion-rate rule.
	for i := 0; i < 5; i++ {
		rec := doRequest(server, http.MethodPost, "/api/v1/events",
			eventBody("s1", "pointers", "exercise", "failed", 0))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(server, http.MethodGet, "/api/v1/students/s1/struggle", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["struggling"])
	assert.Equal(t, "completion_rate", data["alert_type"])
	assert.Equal(t, "Low completion rate: 0% over last 7 days", data["message"])
}

func TestHandleDetectStruggle_NoStruggle(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodGet, "/api/v1/students/s1/struggle", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp JSONResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["struggling"])
}

func TestHandleHealth_Default(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(server, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
