// Package jobs contains the scheduled maintenance jobs of the progress
// engine.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
)

// PruneEventsJob removes learning events older than the retention horizon.
// Aggregates and lifetime event counters are untouched, so mastery and
// consistency scores survive pruning.
type PruneEventsJob struct {
	eventLog  progress.EventLogRepository
	retention time.Duration
	logger    *slog.Logger
}

// NewPruneEventsJob creates a PruneEventsJob.
func NewPruneEventsJob(eventLog progress.EventLogRepository, retention time.Duration, logger *slog.Logger) *PruneEventsJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &PruneEventsJob{
		eventLog:  eventLog,
		retention: retention,
		logger:    logger.With("job", "prune_events"),
	}
}

// Name implements scheduler.Job.
func (j *PruneEventsJob) Name() string {
	return "prune_events"
}

// Description implements scheduler.Job.
func (j *PruneEventsJob) Description() string {
	return fmt.Sprintf("removes learning events older than %s", j.retention)
}

// Run implements scheduler.Job.
func (j *PruneEventsJob) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.retention)

	pruned, err := j.eventLog.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}

	if pruned > 0 {
		j.logger.Info("pruned old learning events",
			"count", pruned,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	return nil
}
