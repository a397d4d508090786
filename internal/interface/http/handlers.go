// Package http implements the REST API for the LearnFlow progress hub.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/learnflow/progress-engine/internal/application/command"
	"github.com/learnflow/progress-engine/internal/domain/shared"
	"github.com/learnflow/progress-engine/pkg/logger"
	"github.com/learnflow/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "LearnFlow Progress API",
		"version":     "v1",
		"description": "Mastery tracking and struggle detection for LearnFlow students",
		"endpoints": map[string]string{
			"health":   "/health",
			"events":   "/api/v1/events",
			"progress": "/api/v1/students/{id}/progress",
			"struggle": "/api/v1/students/{id}/struggle",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT INGESTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// recordEventRequest is the JSON body for POST /api/v1/events.
type recordEventRequest struct {
	StudentID string  `json:"student_id"`
	Topic     string  `json:"topic"`
	Type      string  `json:"type"`
	Status    string  `json:"status,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// toCommand parses the wire shape into a command. An unparseable timestamp
// maps to the zero time, which validation rejects.
func (req recordEventRequest) toCommand() command.RecordEventCommand {
	var ts time.Time
	if req.Timestamp != "" {
		if parsed, err := timeutil.ParseTimestamp(req.Timestamp); err == nil {
			ts = parsed
		}
	}

	return command.RecordEventCommand{
		StudentID: req.StudentID,
		Topic:     req.Topic,
		Kind:      req.Type,
		Status:    req.Status,
		Score:     req.Score,
		Timestamp: ts,
	}
}

// recordEventResponse is the JSON body returned for a recorded event.
type recordEventResponse struct {
	EventID      string      `json:"event_id"`
	MasteryScore float64     `json:"mastery_score"`
	MasteryBand  string      `json:"mastery_band"`
	Alert        interface{} `json:"alert,omitempty"`
}

// handleRecordEvent handles POST /api/v1/events
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Event handler not configured")
		return
	}

	var req recordEventRequest
	if err := decodeBody(w, r, s.config.MaxBodyBytes, &req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}

	cmd := req.toCommand()
	cmd.CorrelationID = getRequestID(r.Context())

	result, err := s.deps.RecordEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, recordEventResponse{
		EventID:      result.EventID,
		MasteryScore: result.Aggregate.MasteryScore,
		MasteryBand:  result.Aggregate.Band().String(),
		Alert:        alertPayload(result),
	})
}

// recordBatchRequest is the JSON body for POST /api/v1/events/batch.
type recordBatchRequest struct {
	Events []recordEventRequest `json:"events"`
}

// handleRecordBatch handles POST /api/v1/events/batch
func (s *Server) handleRecordBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordBatchHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Batch handler not configured")
		return
	}

	var req recordBatchRequest
	if err := decodeBody(w, r, s.config.MaxBodyBytes, &req); err != nil {
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON", err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Batch must contain at least one event")
		return
	}
	if s.config.MaxBatchEvents > 0 && len(req.Events) > s.config.MaxBatchEvents {
		writeJSONError(w, http.StatusBadRequest, "batch_too_large",
			fmt.Sprintf("Batch exceeds the limit of %d events", s.config.MaxBatchEvents))
		return
	}

	cmd := command.RecordBatchCommand{
		Events:        make([]command.RecordEventCommand, 0, len(req.Events)),
		CorrelationID: getRequestID(r.Context()),
	}
	for _, event := range req.Events {
		cmd.Events = append(cmd.Events, event.toCommand())
	}

	result, err := s.deps.RecordBatchHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.logger.Error("batch recording failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to record batch")
		return
	}

	failures := make(map[int]string, len(result.Errors))
	for i, itemErr := range result.Errors {
		failures[i] = itemErr.Error()
	}

	status := http.StatusCreated
	if result.SuccessCount == 0 {
		status = http.StatusBadRequest
	} else if result.FailedCount > 0 {
		status = http.StatusMultiStatus
	}

	writeJSON(w, status, map[string]interface{}{
		"total":    result.TotalCount,
		"recorded": result.SuccessCount,
		"failed":   result.FailedCount,
		"errors":   failures,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetOverview handles GET /api/v1/students/{id}/progress
func (s *Server) handleGetOverview(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	overview, err := s.deps.GetProgressHandler.GetStudentOverview(r.Context(), shared.StudentID(studentID))
	if err != nil {
		if shared.IsNotFound(err) {
			writeJSONError(w, http.StatusNotFound, "not_found", "No progress recorded for this student")
			return
		}
		s.logger.Error("failed to get overview", logger.StudentID(studentID), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

// handleGetTopicProgress handles GET /api/v1/students/{id}/progress/{topic}
func (s *Server) handleGetTopicProgress(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	topic := r.PathValue("topic")
	if studentID == "" || topic == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID and topic are required")
		return
	}

	agg, err := s.deps.GetProgressHandler.GetAggregate(r.Context(), shared.StudentID(studentID), shared.Topic(topic))
	if err != nil {
		if shared.IsNotFound(err) {
			writeJSONError(w, http.StatusNotFound, "not_found", "No progress recorded for this topic")
			return
		}
		s.logger.Error("failed to get topic progress",
			logger.StudentID(studentID), logger.Topic(topic), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id":          agg.StudentID.String(),
		"topic":               agg.Topic.String(),
		"mastery_score":       agg.MasteryScore,
		"mastery_band":        agg.Band().String(),
		"completion_rate":     agg.CompletionRate(),
		"exercises_completed": agg.ExercisesCompleted,
		"total_exercises":     agg.TotalExercises,
		"avg_quiz_score":      agg.AvgQuizScore,
		"avg_code_quality":    agg.AvgCodeQuality,
		"consistency_score":   agg.ConsistencyScore,
		"last_activity":       agg.LastActivity,
	})
}

// handleDetectStruggle handles GET /api/v1/students/{id}/struggle
func (s *Server) handleDetectStruggle(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	alert, err := s.deps.GetProgressHandler.DetectStruggle(r.Context(), shared.StudentID(studentID))
	if err != nil {
		s.logger.Error("struggle detection failed", logger.StudentID(studentID), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to check struggle")
		return
	}

	if alert == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"student_id": studentID,
			"struggling": false,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id":      studentID,
		"struggling":      true,
		"alert_type":      alert.Type.String(),
		"severity":        alert.Severity.String(),
		"message":         alert.Message,
		"recommendations": alert.Recommendations,
	})
}

// handleListAlerts handles GET /api/v1/students/{id}/alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	limit := getQueryParamInt(r, "limit", 20)
	alerts, err := s.deps.GetProgressHandler.ListAlerts(r.Context(), shared.StudentID(studentID), limit)
	if err != nil {
		s.logger.Error("failed to list alerts", logger.StudentID(studentID), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to list alerts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"student_id": studentID,
		"alerts":     alerts,
		"count":      len(alerts),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a size-limited JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dest interface{}) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// writeCommandError maps domain errors to HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusUnprocessableEntity, "validation_error", "Event rejected", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, "cancelled", "Request cancelled")
	default:
		s.logger.Error("command failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to record event")
	}
}

// alertPayload extracts the alert for the response, nil-safe.
func alertPayload(result *command.RecordEventResult) interface{} {
	if result.Alert == nil {
		return nil
	}
	return map[string]interface{}{
		"alert_type":      result.Alert.Type.String(),
		"severity":        result.Alert.Severity.String(),
		"message":         result.Alert.Message,
		"recommendations": result.Alert.Recommendations,
	}
}
