// Package postgres implements the PostgreSQL persistence layer for the
// LearnFlow progress hub.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AggregateRepository implements progress.AggregateRepository for PostgreSQL.
type AggregateRepository struct {
	conn *Connection
}

// NewAggregateRepository creates a new AggregateRepository.
func NewAggregateRepository(conn *Connection) *AggregateRepository {
	return &AggregateRepository{conn: conn}
}

// Save upserts the aggregate row for (student, topic).
func (r *AggregateRepository) Save(ctx context.Context, agg *progress.Aggregate) error {
	query := `
		INSERT INTO progress_aggregates (
			student_id, topic, exercises_completed, total_exercises,
			avg_quiz_score, avg_code_quality, consistency_score, mastery_score,
			last_activity, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (student_id, topic) DO UPDATE SET
			exercises_completed = EXCLUDED.exercises_completed,
			total_exercises = EXCLUDED.total_exercises,
			avg_quiz_score = EXCLUDED.avg_quiz_score,
			avg_code_quality = EXCLUDED.avg_code_quality,
			consistency_score = EXCLUDED.consistency_score,
			mastery_score = EXCLUDED.mastery_score,
			last_activity = EXCLUDED.last_activity,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		agg.StudentID.String(),
		agg.Topic.String(),
		agg.ExercisesCompleted,
		agg.TotalExercises,
		agg.AvgQuizScore,
		agg.AvgCodeQuality,
		agg.ConsistencyScore,
		agg.MasteryScore,
		nullableTime(agg.LastActivity),
		agg.CreatedAt,
		agg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save aggregate: %w", err)
	}

	return nil
}

// Get returns the aggregate for a student and topic.
func (r *AggregateRepository) Get(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error) {
	query := `
		SELECT student_id, topic, exercises_completed, total_exercises,
			   avg_quiz_score, avg_code_quality, consistency_score, mastery_score,
			   last_activity, created_at, updated_at
		FROM progress_aggregates
		WHERE student_id = $1 AND topic = $2
	`

	row := r.conn.QueryRow(ctx, query, studentID.String(), topic.String())
	return scanAggregate(row)
}

// ListByStudent returns all topic aggregates for a student.
func (r *AggregateRepository) ListByStudent(ctx context.Context, studentID shared.StudentID) ([]*progress.Aggregate, error) {
	query := `
		SELECT student_id, topic, exercises_completed, total_exercises,
			   avg_quiz_score, avg_code_quality, consistency_score, mastery_score,
			   last_activity, created_at, updated_at
		FROM progress_aggregates
		WHERE student_id = $1
		ORDER BY topic
	`

	rows, err := r.conn.Query(ctx, query, studentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []*progress.Aggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}

	return aggregates, rows.Err()
}

// scanAggregate scans a single aggregate row.
func scanAggregate(row pgx.Row) (*progress.Aggregate, error) {
	var agg progress.Aggregate
	var studentID, topic string
	var lastActivity *time.Time

	err := row.Scan(
		&studentID,
		&topic,
		&agg.ExercisesCompleted,
		&agg.TotalExercises,
		&agg.AvgQuizScore,
		&agg.AvgCodeQuality,
		&agg.ConsistencyScore,
		&agg.MasteryScore,
		&lastActivity,
		&agg.CreatedAt,
		&agg.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAggregateNotFound
		}
		return nil, fmt.Errorf("failed to scan aggregate: %w", err)
	}

	agg.StudentID = shared.StudentID(studentID)
	agg.Topic = shared.Topic(topic)
	if lastActivity != nil {
		agg.LastActivity = *lastActivity
	}

	return &agg, nil
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT LOG REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EventLogRepository implements progress.EventLogRepository for PostgreSQL.
// Event rows are pruned once they age out of the detection window; lifetime
// counts are kept in student_event_totals.
type EventLogRepository struct {
	conn *Connection
}

// NewEventLogRepository creates a new EventLogRepository.
func NewEventLogRepository(conn *Connection) *EventLogRepository {
	return &EventLogRepository{conn: conn}
}

// Append inserts the event and bumps the student's lifetime counter in one
// transaction, returning the counter value after the bump.
func (r *EventLogRepository) Append(ctx context.Context, event progress.LearningEvent) (int, error) {
	var total int

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		insertEvent := `
			INSERT INTO learning_events (id, student_id, topic, event_kind, status, score, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.Exec(ctx, insertEvent,
			event.ID,
			event.StudentID.String(),
			event.Topic.String(),
			event.Kind.String(),
			event.Status.String(),
			event.Score,
			event.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}

		bumpCounter := `
			INSERT INTO student_event_totals (student_id, total_events, updated_at)
			VALUES ($1, 1, NOW())
			ON CONFLICT (student_id) DO UPDATE SET
				total_events = student_event_totals.total_events + 1,
				updated_at = NOW()
			RETURNING total_events
		`
		if err := tx.QueryRow(ctx, bumpCounter, event.StudentID.String()).Scan(&total); err != nil {
			return fmt.Errorf("failed to bump event counter: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// ListByStudentSince returns the student's events at or after since,
// timestamp ascending.
func (r *EventLogRepository) ListByStudentSince(ctx context.Context, studentID shared.StudentID, since time.Time) ([]progress.LearningEvent, error) {
	query := `
		SELECT id, student_id, topic, event_kind, status, score, occurred_at
		FROM learning_events
		WHERE student_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC
	`

	rows, err := r.conn.Query(ctx, query, studentID.String(), since)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []progress.LearningEvent
	for rows.Next() {
		var ev progress.LearningEvent
		var sid, topic, kind, status string

		if err := rows.Scan(&ev.ID, &sid, &topic, &kind, &status, &ev.Score, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.StudentID = shared.StudentID(sid)
		ev.Topic = shared.Topic(topic)
		ev.Kind = progress.EventKind(kind)
		ev.Status = progress.EventStatus(status)
		events = append(events, ev)
	}

	return events, rows.Err()
}

// CountByStudent returns the student's lifetime event count.
func (r *EventLogRepository) CountByStudent(ctx context.Context, studentID shared.StudentID) (int, error) {
	query := `SELECT total_events FROM student_event_totals WHERE student_id = $1`

	var total int
	err := r.conn.QueryRow(ctx, query, studentID.String()).Scan(&total)
	if err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return total, nil
}

// PruneBefore deletes event rows older than the cutoff.
func (r *EventLogRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM learning_events WHERE occurred_at < $1`

	result, err := r.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AlertRepository implements progress.AlertRepository for PostgreSQL.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// Save persists an alert.
func (r *AlertRepository) Save(ctx context.Context, alert *progress.Alert) error {
	query := `
		INSERT INTO struggle_alerts (id, student_id, alert_type, severity, message, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	recsJSON, err := json.Marshal(alert.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to marshal recommendations: %w", err)
	}

	_, err = r.conn.Exec(ctx, query,
		alert.ID,
		alert.StudentID.String(),
		alert.Type.String(),
		alert.Severity.String(),
		alert.Message,
		recsJSON,
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

// ListByStudent returns the student's most recent alerts, newest first.
func (r *AlertRepository) ListByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]*progress.Alert, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, student_id, alert_type, severity, message, recommendations, created_at
		FROM struggle_alerts
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, studentID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*progress.Alert
	for rows.Next() {
		var alert progress.Alert
		var sid, alertType, severity string
		var recsJSON []byte

		if err := rows.Scan(&alert.ID, &sid, &alertType, &severity, &alert.Message, &recsJSON, &alert.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		if err := json.Unmarshal(recsJSON, &alert.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recommendations: %w", err)
		}

		alert.StudentID = shared.StudentID(sid)
		alert.Type = progress.AlertType(alertType)
		alert.Severity = progress.Severity(severity)
		alerts = append(alerts, &alert)
	}

	return alerts, rows.Err()
}
