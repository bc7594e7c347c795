package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds the Redis connection and cache settings.
type Config struct {
	Enabled   bool
	RedisAddr string
	Password  string
	DB        int
	Options   Options
}

// Module provides the task cache as a mono module.
type Module struct {
	cfg    Config
	client *redis.Client
	cache  *TaskCache
	logger *zap.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the cache module. The Redis client connects lazily, so
// the cache is usable before Start and survives Redis being down.
func NewModule(cfg Config, logger *zap.Logger) *Module {
	logger = logger.Named("cache")

	var client *redis.Client
	if cfg.Enabled {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     50,
			MaxRetries:   1,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
	}

	return &Module{
		cfg:    cfg,
		client: client,
		cache:  New(client, cfg.Options, logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "cache"
}

// Start checks Redis reachability. An unreachable Redis is logged, not fatal.
func (m *Module) Start(ctx context.Context) error {
	if !m.cache.Enabled() {
		m.logger.Info("cache disabled, reads go straight to the store")
		return nil
	}
	if err := m.cache.Ping(ctx); err != nil {
		m.logger.Warn("redis unreachable at startup, running degraded",
			zap.String("addr", m.cfg.RedisAddr), zap.Error(err))
		return nil
	}
	m.logger.Info("connected to redis",
		zap.String("addr", m.cfg.RedisAddr),
		zap.String("key", m.cache.opts.Key),
		zap.Duration("ttl", m.cache.opts.TTL))
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("module stopped")
	return nil
}

// Health reports Redis reachability. The cache is optional, so the module
// stays healthy while degraded.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	details := map[string]any{
		"enabled": m.cache.Enabled(),
		"stats":   m.cache.GetStats(),
	}
	if !m.cache.Enabled() {
		return mono.HealthStatus{Healthy: true, Message: "disabled", Details: details}
	}

	details["redis_addr"] = m.cfg.RedisAddr
	if err := m.cache.Ping(ctx); err != nil {
		details["error"] = err.Error()
		return mono.HealthStatus{Healthy: true, Message: "degraded", Details: details}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// GetCache returns the task cache.
func (m *Module) GetCache() *TaskCache {
	return m.cache
}
