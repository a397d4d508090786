package redis

import (
	"context"
	"errors"
	"time"

	"github.com/learnflow/progress-engine/internal/domain/progress"
	"github.com/learnflow/progress-engine/internal/domain/shared"
)

// ProgressCache caches per-topic progress aggregates on top of the generic
// Redis Cache. Aggregates are written through on every fold, so the TTL is a
// safety net rather than the consistency mechanism.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a new ProgressCache with the default TTL.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{
		cache: cache,
		ttl:   TTLProgressCache,
	}
}

// Get returns the cached aggregate for a student and topic.
// Returns ErrCacheMiss when not cached.
func (p *ProgressCache) Get(ctx context.Context, studentID shared.StudentID, topic shared.Topic) (*progress.Aggregate, error) {
	var agg progress.Aggregate
	key := ProgressKey(studentID.String(), topic.String())

	if err := p.cache.Get(ctx, key, &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

// Set caches the aggregate and drops the student's overview, which is now
// stale.
func (p *ProgressCache) Set(ctx context.Context, agg *progress.Aggregate) error {
	if agg == nil {
		return nil
	}

	key := ProgressKey(agg.StudentID.String(), agg.Topic.String())
	if err := p.cache.Set(ctx, key, agg, p.ttl); err != nil {
		return err
	}

	return p.cache.Delete(ctx, OverviewKey(agg.StudentID.String()))
}

// Invalidate removes the cached aggregate for a student and topic.
func (p *ProgressCache) Invalidate(ctx context.Context, studentID shared.StudentID, topic shared.Topic) error {
	return p.cache.Delete(ctx,
		ProgressKey(studentID.String(), topic.String()),
		OverviewKey(studentID.String()),
	)
}

// InvalidateStudent removes every cached entry for a student.
func (p *ProgressCache) InvalidateStudent(ctx context.Context, studentID shared.StudentID) error {
	if err := p.cache.DeleteByPattern(ctx, PrefixProgress+studentID.String()+":*"); err != nil {
		return err
	}
	return p.cache.Delete(ctx,
		OverviewKey(studentID.String()),
		AlertsKey(studentID.String()),
	)
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
