package snapshot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/benefits/accumulator/internal/domain/accumulator"
	"github.com/benefits/accumulator/internal/platform/apperr"
	"github.com/benefits/accumulator/internal/platform/metrics"
)

const opGet = "snapshot.Get"

// ReplayFunc computes a fresh result. It runs on a context detached from the
// caller that triggered it.
type ReplayFunc func(ctx context.Context) (*accumulator.Result, error)

// Cache memoizes replay results per family and plan year, keyed by the
// version they were computed against. At most one replay runs per family and
// plan year; callers at the same version share its result, callers at another
// version wait for it and then run their own.
type Cache struct {
	store       Store
	group       singleflight.Group
	lockTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type flightResult struct {
	version Version
	result  *accumulator.Result
	err     error
}

// NewCache wraps store. lockTimeout bounds how long a caller waits on an
// in-flight replay before the flight is abandoned.
func NewCache(store Store, lockTimeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Cache {
	return &Cache{
		store:       store,
		lockTimeout: lockTimeout,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
	}
}

// Get returns the result cached for key at version v, or runs replay once and
// stores its result. Replay errors are never cached.
func (c *Cache) Get(ctx context.Context, key Key, v Version, replay ReplayFunc) (*accumulator.Result, error) {
	if e, ok := c.lookup(ctx, key, v); ok {
		c.metrics.RecordCacheHit(c.store.Name())
		return e.Result, nil
	}
	c.metrics.RecordCacheMiss(c.store.Name())

	var timeout <-chan time.Time
	if c.lockTimeout > 0 {
		t := time.NewTimer(c.lockTimeout)
		defer t.Stop()
		timeout = t.C
	}

	flight := key.String()
	detached := context.WithoutCancel(ctx)
	for {
		ch := c.group.DoChan(flight, func() (interface{}, error) {
			return c.run(detached, key, v, replay), nil
		})

		select {
		case r := <-ch:
			fr := r.Val.(*flightResult)
			if fr.version == v {
				return fr.result, fr.err
			}
			// The flight was for another version; ours may have been stored
			// meanwhile, otherwise start the next flight.
			if e, ok := c.lookup(ctx, key, v); ok {
				return e.Result, nil
			}
		case <-timeout:
			c.group.Forget(flight)
			c.metrics.RecordCacheRaceTimeout()
			c.logger.Error().
				Str("tenant_id", key.TenantID).
				Str("family_id", key.FamilyID).
				Int("plan_year", key.PlanYear).
				Str("version", v.String()).
				Dur("waited", c.lockTimeout).
				Msg("replay lock not released, forgetting flight")
			return nil, apperr.New(apperr.KindCacheRaceTimeout, opGet, "replay for %s did not finish within %s", key, c.lockTimeout)
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindInternal, opGet, ctx.Err())
		}
	}
}

func (c *Cache) run(ctx context.Context, key Key, v Version, replay ReplayFunc) *flightResult {
	if e, ok := c.lookup(ctx, key, v); ok {
		return &flightResult{version: v, result: e.Result}
	}
	start := time.Now()
	res, err := replay(ctx)
	c.metrics.RecordReplay(time.Since(start), err)
	if err != nil {
		return &flightResult{version: v, err: err}
	}
	entry := &Entry{TenantID: key.TenantID, Version: v, Result: res, ComputedAt: c.now().UTC()}
	if err := c.store.Put(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("snapshot store put failed")
	}
	return &flightResult{version: v, result: res}
}

// Invalidate drops the family's entry.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	return c.store.Delete(ctx, key)
}

func (c *Cache) lookup(ctx context.Context, key Key, v Version) (*Entry, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("snapshot store get failed")
		return nil, false
	}
	if !ok || e.Version != v || e.TenantID != key.TenantID || e.Result == nil {
		return nil, false
	}
	return e, true
}
