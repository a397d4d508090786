// Package memory implements an in-memory persistence layer for the LearnFlow
// progress hub. It is the reference implementation used in tests and local
// development; production deployments use the postgres package.
//
// The store shards its maps by student and keeps a lifetime event counter per
// student so that pruning old event rows never distorts the consistency
// score.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// DefaultRetention is how long event rows are kept. It must cover the
// struggle detection window with a day of slack for late-arriving events.
const DefaultRetention = 8 * 24 * time.Hour

const shardCount = 32

type aggregateKey struct {
	studentID shared.StudentID
	topic     shared.Topic
}

type shard struct {
	mu          sync.RWMutex
	aggregates  map[aggregateKey]*progress.Aggregate
	events      map[shared.StudentID][]progress.LearningEvent
	eventTotals map[shared.StudentID]int
	alerts      map[shared.StudentID][]*progress.Alert
}

// Store is an in-memory implementation of the progress repositories. Safe
// for concurrent use; operations on different students run in parallel.
type Store struct {
	shards    [shardCount]*shard
	retention time.Duration
}

// NewStore creates a store with the default event retention.
func NewStore() *Store {
	return NewStoreWithRetention(DefaultRetention)
}

// NewStoreWithRetention creates a store with a custom event retention.
func NewStoreWithRetention(retention time.Duration) *Store {
	s := &Store{retention: retention}
	for i := range s.shards {
		s.shards[i] = &shard{
			aggregates:  make(map[aggregateKey]*progress.Aggregate),
			events:      make(map[shared.StudentID][]progress.LearningEvent),
			eventTotals: make(map[shared.StudentID]int),
			alerts:      make(map[shared.StudentID][]*progress.Alert),
		}
	}
	return s
}

func (s *Store) shardFor(studentID shared.StudentID) *shard {
	h := uint32(2166136261)
	for i := 0; i < len(studentID); i++ {
		h ^= uint32(studentID[i])
		h *= 16777619
	}
	return s.shards[h%shardCount]
}

// ─────────────────────────────────────────────────────────────────────────────
// AggregateRepository
// ─────────────────────────────────────────────────────────────────────────────

// Save stores a copy of the aggregate.
func (s *Store) Save(ctx context.Context, agg *progress.Aggregate) error {
	sh := s.shardFor(agg.StudentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	clone := *agg
	sh.aggregates[aggregateKey{agg.StudentID, agg.Topic}] = &clone
	return nil
}

// Get returns a copy of the aggregate for a student and topic.
func (s *Store) Get(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error) {
	sh := s.shardFor(studentID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	agg, ok := sh.aggregates[aggregateKey{studentID, topic}]
	if !ok {
		return nil, shared.ErrAggregateNotFound
	}

	clone := *agg
	return &clone, nil
}

// ListByStudent returns copies of all topic aggregates for a student,
// ordered by topic.
func (s *Store) ListByStudent(ctx context.Context, studentID shared.StudentID) ([]*progress.Aggregate, error) {
	sh := s.shardFor(studentID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	var result []*progress.Aggregate
	for key, agg := range sh.aggregates {
		if key.studentID != studentID {
			continue
		}
		clone := *agg
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Topic < result[j].Topic
	})
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// EventLogRepository
// ─────────────────────────────────────────────────────────────────────────────

// Append stores the event, bumps the lifetime counter, and drops rows that
// have aged out of the retention window. Returns the lifetime count.
func (s *Store) Append(ctx context.Context, event progress.LearningEvent) (int, error) {
	sh := s.shardFor(event.StudentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.events[event.StudentID] = append(sh.events[event.StudentID], event)
	sh.eventTotals[event.StudentID]++

	cutoff := time.Now().UTC().Add(-s.retention)
	sh.events[event.StudentID] = pruneEvents(sh.events[event.StudentID], cutoff)

	return sh.eventTotals[event.StudentID], nil
}

// ListByStudentSince returns the student's retained events at or after since,
// timestamp ascending.
func (s *Store) ListByStudentSince(ctx context.Context, studentID shared.StudentID, since time.Time) ([]progress.LearningEvent, error) {
	sh := s.shardFor(studentID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	var result []progress.LearningEvent
	for _, ev := range sh.events[studentID] {
		if ev.Timestamp.Before(since) {
			continue
		}
		result = append(result, ev)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// CountByStudent returns the student's lifetime event count.
func (s *Store) CountByStudent(ctx context.Context, studentID shared.StudentID) (int, error) {
	sh := s.shardFor(studentID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return sh.eventTotals[studentID], nil
}

// PruneBefore drops retained events older than the cutoff across all shards.
// Lifetime counters are unaffected.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	pruned := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for studentID, events := range sh.events {
			kept := pruneEvents(events, cutoff)
			pruned += len(events) - len(kept)
			sh.events[studentID] = kept
		}
		sh.mu.Unlock()
	}
	return pruned, nil
}

func pruneEvents(events []progress.LearningEvent, cutoff time.Time) []progress.LearningEvent {
	kept := events[:0]
	for _, ev := range events {
		if ev.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

// ─────────────────────────────────────────────────────────────────────────────
// AlertRepository
// ─────────────────────────────────────────────────────────────────────────────

// SaveAlert persists an alert.
func (s *Store) SaveAlert(ctx context.Context, alert *progress.Alert) error {
	sh := s.shardFor(alert.StudentID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	clone := *alert
	sh.alerts[alert.StudentID] = append(sh.alerts[alert.StudentID], &clone)
	return nil
}

// ListAlertsByStudent returns the student's most recent alerts, newest first.
func (s *Store) ListAlertsByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]*progress.Alert, error) {
	sh := s.shardFor(studentID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	stored := sh.alerts[studentID]
	if limit <= 0 || limit > len(stored) {
		limit = len(stored)
	}

	result := make([]*progress.Alert, 0, limit)
	for i := len(stored) - 1; i >= 0 && len(result) < limit; i-- {
		clone := *stored[i]
		result = append(result, &clone)
	}
	return result, nil
}

// Alerts adapts the store to the progress.AlertRepository interface, whose
// method names collide with the aggregate repository's.
func (s *Store) Alerts() progress.AlertRepository {
	return alertAdapter{s}
}

type alertAdapter struct{ store *Store }

func (a alertAdapter) Save(ctx context.Context, alert *progress.Alert) error {
	return a.store.SaveAlert(ctx, alert)
}

func (a alertAdapter) ListByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]*progress.Alert, error) {
	return a.store.ListAlertsByStudent(ctx, studentID, limit)
}
