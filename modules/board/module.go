package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/Cjantwhy/task-cooperator/config"
	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/events"
	"github.com/go-monolith/mono"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// StoreConfig selects and locates the durable store.
type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Module owns the durable store and the mutation coordinator.
type Module struct {
	cfg      StoreConfig
	repo     task.Repository
	service  *Service
	cache    Cache
	notifier Notifier
	eventBus mono.EventBus
	logger   *zap.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new board module.
func NewModule(cfg StoreConfig, logger *zap.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger.Named("board"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "board"
}

// SetCache sets the collection cache (called from main.go).
func (m *Module) SetCache(c Cache) {
	m.cache = c
}

// SetNotifier replaces EventBus publishing with n.
func (m *Module) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return events.All()
}

// Start opens the store, ensures the schema and creates the coordinator.
func (m *Module) Start(ctx context.Context) error {
	if m.cache == nil {
		return errors.New("cache dependency not set")
	}

	repo, err := m.openRepository(ctx)
	if err != nil {
		return err
	}
	m.repo = repo

	notifier := m.notifier
	switch {
	case notifier != nil:
	case m.eventBus != nil:
		notifier = &busNotifier{bus: m.eventBus, logger: m.logger}
	default:
		m.logger.Warn("eventBus not set, task events will not be published")
		notifier = discardNotifier{}
	}

	m.service = NewService(repo, m.cache, notifier, m.logger)
	m.logger.Info("module started", zap.String("driver", m.cfg.Driver))
	return nil
}

func (m *Module) openRepository(ctx context.Context) (task.Repository, error) {
	switch m.cfg.Driver {
	case config.DriverPostgres:
		pool, err := task.Connect(ctx, m.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		repo := task.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repo, nil

	case config.DriverSQLite:
		db, err := gorm.Open(sqlite.Open(m.cfg.SQLitePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		// SQLite allows one writer; a single connection serializes writes.
		sqlDB.SetMaxOpenConns(1)

		repo := task.NewGormRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", m.cfg.Driver)
	}
}

// Stop closes the store.
func (m *Module) Stop(_ context.Context) error {
	if m.repo != nil {
		if err := m.repo.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}
	m.logger.Info("module stopped")
	return nil
}

// Health reports store reachability.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.repo == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store not initialized",
		}
	}
	if err := m.repo.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "store unreachable",
			Details: map[string]any{"driver": m.cfg.Driver, "error": err.Error()},
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.cfg.Driver},
	}
}

// GetService returns the mutation coordinator. It is nil until Start.
func (m *Module) GetService() *Service {
	return m.service
}
