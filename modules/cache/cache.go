// Package cache provides the read-through, write-invalidate Redis cache for the task collection.
//
// The whole collection lives under a single key. Redis failures never reach
// the caller: reads fall back to the loader and invalidations become no-ops,
// with a warning logged and the error counted.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative collection from the store.
type Loader func(ctx context.Context) ([]task.Task, error)

// Options configures a TaskCache.
type Options struct {
	Key       string
	TTL       time.Duration
	OpTimeout time.Duration
	// LoadTimeout bounds a shared store load, which outlives any single caller.
	LoadTimeout time.Duration
}

// DefaultOptions returns the default cache options.
func DefaultOptions() Options {
	return Options{
		Key:         "tasks:all",
		TTL:         60 * time.Second,
		OpTimeout:   500 * time.Millisecond,
		LoadTimeout: 10 * time.Second,
	}
}

// TaskCache caches the full task list in Redis.
// A nil client disables caching and every read goes to the loader.
type TaskCache struct {
	client *redis.Client
	opts   Options
	stats  *Stats
	group  singleflight.Group
	gen    atomic.Uint64
	logger *zap.Logger
}

// Stats tracks cache statistics.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Sets          uint64
	Invalidations uint64
	Errors        uint64
}

// StatsSnapshot is a point-in-time copy of the statistics.
type StatsSnapshot struct {
	Enabled       bool    `json:"enabled"`
	Key           string  `json:"key"`
	Hits          uint64  `json:"hits"`
	Misses        uint64  `json:"misses"`
	Sets          uint64  `json:"sets"`
	Invalidations uint64  `json:"invalidations"`
	Errors        uint64  `json:"errors"`
	HitRate       float64 `json:"hit_rate"`
	TotalGets     uint64  `json:"total_gets"`
}

// New creates a task cache. Pass a nil client to disable caching.
func New(client *redis.Client, opts Options, logger *zap.Logger) *TaskCache {
	defaults := DefaultOptions()
	if opts.Key == "" {
		opts.Key = defaults.Key
	}
	if opts.TTL <= 0 {
		opts.TTL = defaults.TTL
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaults.OpTimeout
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaults.LoadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskCache{
		client: client,
		opts:   opts,
		stats:  &Stats{},
		logger: logger,
	}
}

// Enabled reports whether a Redis client is configured.
func (c *TaskCache) Enabled() bool {
	return c.client != nil
}

// Read returns the cached collection, or loads, caches and returns it.
// The boolean reports a cache hit. Only loader errors and the caller's own
// cancellation are returned.
//
// Concurrent misses share one load, but only within a generation: a read that
// starts after Invalidate never joins a load that started before it.
func (c *TaskCache) Read(ctx context.Context, load Loader) ([]task.Task, bool, error) {
	gen := c.gen.Load()
	if tasks, ok := c.get(ctx); ok {
		return tasks, true, nil
	}

	flightKey := c.opts.Key + "#" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LoadTimeout)
		defer cancel()

		tasks, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.setIfCurrent(loadCtx, gen, tasks)
		return tasks, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return slices.Clone(res.Val.([]task.Task)), false, nil
	}
}

// Invalidate drops the cached collection. It is idempotent and never fails;
// a Redis error leaves the entry to expire by TTL.
func (c *TaskCache) Invalidate(ctx context.Context) {
	c.gen.Add(1)
	if c.client == nil {
		return
	}
	if err := c.del(ctx); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("cache invalidation failed, entry will expire by TTL",
			zap.String("key", c.opts.Key),
			zap.Duration("ttl", c.opts.TTL),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&c.stats.Invalidations, 1)
}

func (c *TaskCache) del(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	return c.client.Del(ctx, c.opts.Key).Err()
}

// setIfCurrent caches tasks loaded under gen. Nothing is written once an
// invalidation has happened since the load began, and a write that raced one
// is deleted again.
func (c *TaskCache) setIfCurrent(ctx context.Context, gen uint64, tasks []task.Task) {
	if c.gen.Load() != gen {
		return
	}
	c.set(ctx, tasks)
	if c.client != nil && c.gen.Load() != gen {
		if err := c.del(ctx); err != nil {
			atomic.AddUint64(&c.stats.Errors, 1)
			c.logger.Warn("failed to drop stale cache entry", zap.String("key", c.opts.Key), zap.Error(err))
		}
	}
}

func (c *TaskCache) get(ctx context.Context) ([]task.Task, bool) {
	if c.client == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.opts.Key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			atomic.AddUint64(&c.stats.Misses, 1)
			return nil, false
		}
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("cache read failed, falling back to store",
			zap.String("key", c.opts.Key), zap.Error(err))
		return nil, false
	}

	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("cached payload is corrupt, falling back to store",
			zap.String("key", c.opts.Key), zap.Error(err))
		return nil, false
	}

	atomic.AddUint64(&c.stats.Hits, 1)
	if tasks == nil {
		tasks = make([]task.Task, 0)
	}
	return tasks, true
}

func (c *TaskCache) set(ctx context.Context, tasks []task.Task) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("failed to encode task list for cache", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	if err := c.client.Set(ctx, c.opts.Key, data, c.opts.TTL).Err(); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		c.logger.Warn("cache write failed",
			zap.String("key", c.opts.Key), zap.Error(err))
		return
	}
	atomic.AddUint64(&c.stats.Sets, 1)
}

// GetStats returns the current cache statistics.
func (c *TaskCache) GetStats() StatsSnapshot {
	hits := atomic.LoadUint64(&c.stats.Hits)
	misses := atomic.LoadUint64(&c.stats.Misses)
	totalGets := hits + misses

	var hitRate float64
	if totalGets > 0 {
		hitRate = float64(hits) / float64(totalGets) * 100
	}

	return StatsSnapshot{
		Enabled:       c.Enabled(),
		Key:           c.opts.Key,
		Hits:          hits,
		Misses:        misses,
		Sets:          atomic.LoadUint64(&c.stats.Sets),
		Invalidations: atomic.LoadUint64(&c.stats.Invalidations),
		Errors:        atomic.LoadUint64(&c.stats.Errors),
		HitRate:       hitRate,
		TotalGets:     totalGets,
	}
}

// ResetStats resets all statistics counters.
func (c *TaskCache) ResetStats() {
	atomic.StoreUint64(&c.stats.Hits, 0)
	atomic.StoreUint64(&c.stats.Misses, 0)
	atomic.StoreUint64(&c.stats.Sets, 0)
	atomic.StoreUint64(&c.stats.Invalidations, 0)
	atomic.StoreUint64(&c.stats.Errors, 0)
}

// Ping checks if the Redis connection is healthy.
func (c *TaskCache) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("cache disabled")
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}
