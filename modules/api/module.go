// Package api serves the task board over HTTP and the /ws push channel.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Cjantwhy/task-cooperator/modules/board"
	"github.com/Cjantwhy/task-cooperator/modules/broadcast"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	app            *fiber.App
	board          *board.Module
	tasks          TaskService
	hub            *broadcast.Hub
	stats          CacheStats
	checks         []HealthChecker
	port           int
	observerBuffer int
	logger         *zap.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(port, observerBuffer int, logger *zap.Logger) *APIModule {
	return &APIModule{
		port:           port,
		observerBuffer: observerBuffer,
		logger:         logger.Named("api"),
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// SetBoardModule sets the board module whose service backs the task routes.
func (m *APIModule) SetBoardModule(b *board.Module) {
	m.board = b
}

// SetHub sets the observer hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetCacheStats sets the source of cache counters.
func (m *APIModule) SetCacheStats(s CacheStats) {
	m.stats = s
}

// AddHealthChecks registers modules reported by /health.
func (m *APIModule) AddHealthChecks(checks ...HealthChecker) {
	m.checks = append(m.checks, checks...)
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	if m.tasks == nil {
		if m.board == nil {
			return errors.New("board module dependency not set")
		}
		svc := m.board.GetService()
		if svc == nil {
			return errors.New("board service not started; register the board module before api")
		}
		m.tasks = svc
	}
	if m.hub == nil {
		return errors.New("broadcast hub dependency not set")
	}

	m.app = m.newApp()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", m.port))
	if err != nil {
		return fmt.Errorf("failed to listen on :%d: %w", m.port, err)
	}

	go func() {
		if err := m.app.Listener(ln); err != nil {
			m.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	m.logger.Info("HTTP server started", zap.Int("port", m.port))
	return nil
}

// newApp creates the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestLogger(m.logger))
	app.Use(cors.New())

	m.setupRoutes(app)
	return app
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("shutting down HTTP server")
	return m.app.ShutdownWithContext(ctx)
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.port}
	if m.hub != nil {
		details["observers"] = m.hub.Count()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}
