// Package cache deduplicates query executions by key. Concurrent requests
// for one key share a single computation; successful results are kept for
// their TTL in process and, when configured, in a shared Store.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-nlq/pkg/logging"
	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// ComputeFunc produces the result for a key on a miss.
type ComputeFunc func(ctx context.Context) (*models.QueryResult, error)

// Config configures a ResultCache.
type Config struct {
	// SweepInterval enables a background sweep of expired entries when positive.
	SweepInterval time.Duration
}

type entry struct {
	result    *models.QueryResult
	expiresAt time.Time
}

type outcome struct {
	result *models.QueryResult
	cached bool
}

// ResultCache is a single-flight cache of query results with per-entry TTL.
// Failures are shared with the callers waiting on them but never stored.
type ResultCache struct {
	group   singleflight.Group
	shared  Store
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]entry

	stop     chan struct{}
	stopOnce sync.Once
	sweeper  sync.WaitGroup
}

// New creates a ResultCache. shared and metrics may be nil.
func New(cfg Config, shared Store, metrics *Metrics, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	c := &ResultCache{
		shared:  shared,
		metrics: metrics,
		logger:  logger.Named("result-cache"),
		now:     time.Now,
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		c.sweeper.Add(1)
		go c.sweepLoop(cfg.SweepInterval)
	}
	return c
}

// GetOrCompute returns the live entry for key or runs compute. Callers that
// arrive while a computation for key is in flight wait for it and receive its
// result or its error. A non-positive ttl deduplicates without storing.
// Returned results are copies owned by the caller; Cached reports whether the
// result came from a stored entry.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) (*models.QueryResult, error) {
	if r, ok := c.lookup(key); ok {
		c.metrics.hits.Inc()
		return r, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A leader that finished between our lookup and Do may have stored it.
		if r, ok := c.lookup(key); ok {
			c.metrics.hits.Inc()
			return outcome{result: r, cached: true}, nil
		}

		if r, ok := c.fromShared(ctx, key, ttl); ok {
			return outcome{result: r, cached: true}, nil
		}

		c.metrics.misses.Inc()
		r, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, errors.New("compute returned no result")
		}
		if ttl > 0 {
			c.store(key, r, ttl)
			c.toShared(ctx, key, r, ttl)
		}
		return outcome{result: r}, nil
	})
	if err != nil {
		return nil, err
	}

	o := v.(outcome)
	r := o.result.Clone()
	r.Cached = o.cached
	return r, nil
}

// Invalidate drops key from the local tier.
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.metrics.size.Set(float64(len(c.entries)))
	c.mu.Unlock()
}

// Len returns the number of local entries, expired ones included until swept.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired local entry and returns how many it removed.
func (c *ResultCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	c.metrics.evictions.Add(float64(removed))
	c.metrics.size.Set(float64(len(c.entries)))
	return removed
}

// Close stops the background sweep.
func (c *ResultCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.sweeper.Wait()
}

// lookup returns a copy of the live entry for key, evicting it when expired.
func (c *ResultCache) lookup(key string) (*models.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.metrics.evictions.Inc()
		c.metrics.size.Set(float64(len(c.entries)))
		return nil, false
	}
	r := e.result.Clone()
	r.Cached = true
	return r, true
}

func (c *ResultCache) store(key string, r *models.QueryResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{result: r.Clone(), expiresAt: c.now().Add(ttl)}
	c.metrics.size.Set(float64(len(c.entries)))
}

func (c *ResultCache) fromShared(ctx context.Context, key string, ttl time.Duration) (*models.QueryResult, bool) {
	if c.shared == nil {
		return nil, false
	}
	r, err := c.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Shared cache lookup failed",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)))
		}
		return nil, false
	}
	c.metrics.sharedHits.Inc()
	if ttl > 0 {
		c.store(key, r, ttl)
	}
	return r, true
}

func (c *ResultCache) toShared(ctx context.Context, key string, r *models.QueryResult, ttl time.Duration) {
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, key, r, ttl); err != nil {
		c.logger.Warn("Shared cache write failed",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (c *ResultCache) sweepLoop(interval time.Duration) {
	defer c.sweeper.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("Swept expired results", zap.Int("removed", n))
			}
		case <-c.stop:
			return
		}
	}
}
