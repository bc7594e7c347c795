package api

import (
	"errors"
	"strconv"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/modules/broadcast"
	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	// Push channel
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	api := app.Group("/api")

	api.Get("/tasks", m.listTasks)
	api.Post("/tasks", m.createTask)
	api.Put("/tasks/:id", m.updateTask)
	api.Delete("/tasks/:id", m.deleteTask)

	api.Get("/cache/stats", m.getStats)
	api.Post("/cache/stats/reset", m.resetStats)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:  "healthy",
		Modules: make(map[string]mono.HealthStatus, len(m.checks)),
	}
	code := fiber.StatusOK
	for _, hc := range m.checks {
		status := hc.Health(c.UserContext())
		resp.Modules[hc.Name()] = status
		if !status.Healthy {
			resp.Status = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
	}
	return c.Status(code).JSON(resp)
}

// listTasks handles GET /api/tasks.
func (m *APIModule) listTasks(c *fiber.Ctx) error {
	tasks, fromCache, err := m.tasks.List(c.UserContext())
	if err != nil {
		return m.writeError(c, err, "Failed to list tasks")
	}

	if fromCache {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	return c.JSON(tasks)
}

// createTask handles POST /api/tasks.
func (m *APIModule) createTask(c *fiber.Ctx) error {
	var req task.CreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	created, err := m.tasks.Create(c.UserContext(), req)
	if err != nil {
		return m.writeError(c, err, "Failed to create task")
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// updateTask handles PUT /api/tasks/:id.
func (m *APIModule) updateTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	var req task.UpdateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_request",
				Message: "Invalid request body",
			})
		}
	}

	updated, err := m.tasks.Update(c.UserContext(), id, req)
	if err != nil {
		return m.writeError(c, err, "Failed to update task")
	}
	return c.JSON(updated)
}

// deleteTask handles DELETE /api/tasks/:id.
func (m *APIModule) deleteTask(c *fiber.Ctx) error {
	id, ok := parseID(c)
	if !ok {
		return invalidID(c)
	}

	if err := m.tasks.Delete(c.UserContext(), id); err != nil {
		return m.writeError(c, err, "Failed to delete task")
	}
	return c.JSON(MessageResponse{Message: "task deleted"})
}

// getStats handles GET /api/cache/stats.
func (m *APIModule) getStats(c *fiber.Ctx) error {
	resp := StatsResponse{Fanout: m.hub.Stats()}
	if m.stats != nil {
		resp.Cache = m.stats.GetStats()
	}
	return c.JSON(resp)
}

// resetStats handles POST /api/cache/stats/reset.
func (m *APIModule) resetStats(c *fiber.Ctx) error {
	if m.stats != nil {
		m.stats.ResetStats()
	}
	return c.JSON(MessageResponse{Message: "cache statistics reset"})
}

// handleWebSocket serves one observer on /ws. The server only pushes; client
// messages are read to detect disconnects and otherwise discarded.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	o := broadcast.NewObserver(uuid.New().String(), c, m.observerBuffer, m.logger)
	m.hub.Register(o)
	o.Open()
	defer func() {
		m.hub.Unregister(o)
		o.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("observer read error", zap.String("observer", o.ID), zap.Error(err))
			}
			return
		}
	}
}

// writeError maps coordinator errors to HTTP responses.
func (m *APIModule) writeError(c *fiber.Ctx, err error, message string) error {
	switch {
	case errors.Is(err, task.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.Is(err, task.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Task not found",
		})
	default:
		m.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   "internal_error",
			Message: message,
		})
	}
}

func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func invalidID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "invalid_id",
		Message: "Invalid task ID",
	})
}
