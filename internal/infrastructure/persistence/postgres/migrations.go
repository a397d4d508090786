// Package postgres implements the PostgreSQL persistence layer for the
// LearnFlow progress hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESS AGGREGATES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progress aggregates
-- Version: 001

-- One row per (student, topic). Aggregates are created lazily on the first
-- event and never deleted; mastery_score is derived and only written by the
-- fold path.
CREATE TABLE IF NOT EXISTS progress_aggregates (
    student_id VARCHAR(100) NOT NULL,
    topic VARCHAR(200) NOT NULL,
    exercises_completed INTEGER NOT NULL DEFAULT 0,
    total_exercises INTEGER NOT NULL DEFAULT 0,
    avg_quiz_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_code_quality DOUBLE PRECISION NOT NULL DEFAULT 0,
    consistency_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    mastery_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    last_activity TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_id, topic),

    CONSTRAINT completed_within_total CHECK (exercises_completed >= 0 AND exercises_completed <= total_exercises),
    CONSTRAINT valid_quiz_score CHECK (avg_quiz_score >= 0 AND avg_quiz_score <= 100),
    CONSTRAINT valid_code_quality CHECK (avg_code_quality >= 0 AND avg_code_quality <= 100),
    CONSTRAINT valid_consistency CHECK (consistency_score >= 0 AND consistency_score <= 100),
    CONSTRAINT valid_mastery CHECK (mastery_score >= 0 AND mastery_score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_progress_aggregates_student ON progress_aggregates(student_id);
CREATE INDEX IF NOT EXISTS idx_progress_aggregates_mastery ON progress_aggregates(mastery_score DESC);

-- Lifetime event counters per student, across topics. Survives pruning of the
-- event log; drives the consistency score.
CREATE TABLE IF NOT EXISTS student_event_totals (
    student_id VARCHAR(100) PRIMARY KEY,
    total_events INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT non_negative_total CHECK (total_events >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS student_event_totals;
DROP TABLE IF EXISTS progress_aggregates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE LEARNING EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create learning events log
-- Version: 002

-- Append-only. Rows are pruned once they fall outside the struggle detection
-- window; lifetime counts live in student_event_totals.
CREATE TABLE IF NOT EXISTS learning_events (
    id UUID PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL,
    topic VARCHAR(200) NOT NULL DEFAULT '',
    event_kind VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT '',
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    ingested_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_event_kind CHECK (event_kind IN ('exercise', 'quiz', 'code_review')),
    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_learning_events_student_time ON learning_events(student_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_learning_events_occurred_at ON learning_events(occurred_at);
`

const migration002Down = `
DROP TABLE IF EXISTS learning_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE STRUGGLE ALERTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create struggle alerts
-- Version: 003

CREATE TABLE IF NOT EXISTS struggle_alerts (
    id UUID PRIMARY KEY,
    student_id VARCHAR(100) NOT NULL,
    alert_type VARCHAR(30) NOT NULL,
    severity VARCHAR(10) NOT NULL,
    message TEXT NOT NULL,
    recommendations JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_alert_type CHECK (alert_type IN ('completion_rate', 'repeated_failures', 'low_scores')),
    CONSTRAINT valid_severity CHECK (severity IN ('low', 'medium', 'high'))
);

CREATE INDEX IF NOT EXISTS idx_struggle_alerts_student ON struggle_alerts(student_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_struggle_alerts_type ON struggle_alerts(alert_type);
`

const migration003Down = `
DROP TABLE IF EXISTS struggle_alerts;
`
