package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/modules/board"
	"github.com/Cjantwhy/task-cooperator/modules/broadcast"
	"github.com/Cjantwhy/task-cooperator/modules/cache"
	fws "github.com/fasthttp/websocket"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingConn captures events pushed to a test observer.
type recordingConn struct {
	mu     sync.Mutex
	events []task.Event
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	var evt task.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) received() []task.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]task.Event, len(c.events))
	copy(out, c.events)
	return out
}

type testServer struct {
	module *APIModule
	app    *fiber.App
	hub    *broadcast.Hub
	conn   *recordingConn
}

// newTestServer wires the real coordinator over a SQLite store, a disabled
// cache and the hub as the direct notifier.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	repo := task.NewGormRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })

	taskCache := cache.New(nil, cache.DefaultOptions(), zap.NewNop())
	hub := broadcast.NewHub(zap.NewNop())
	svc := board.NewService(repo, taskCache, hub, zap.NewNop())

	m := NewModule(0, 16, zap.NewNop())
	m.tasks = svc
	m.hub = hub
	m.SetCacheStats(taskCache)

	conn := &recordingConn{}
	o := broadcast.NewObserver("test", conn, 16, nil)
	hub.Register(o)
	o.Open()
	t.Cleanup(hub.CloseAll)

	return &testServer{module: m, app: m.newApp(), hub: hub, conn: conn}
}

func (s *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *testServer) waitEvents(t *testing.T, n int) []task.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.conn.received()) >= n }, 2*time.Second, 5*time.Millisecond)
	return s.conn.received()
}

func TestAPI_TaskLifecycle(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/tasks", `{"title":"A"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	a := decode[task.Task](t, resp)
	assert.Equal(t, "A", a.Title)
	assert.Equal(t, "", a.Description)
	assert.Equal(t, task.StatusPending, a.Status)
	assert.True(t, a.UpdatedAt.Equal(a.CreatedAt))

	resp = s.do(t, http.MethodPost, "/api/tasks", `{"title":"B","description":"second"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	b := decode[task.Task](t, resp)

	resp = s.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	list := decode[[]task.Task](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", a.ID), `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[task.Task](t, resp)
	assert.Equal(t, task.StatusCompleted, updated.Status)
	assert.Equal(t, "A", updated.Title)
	assert.True(t, updated.UpdatedAt.After(a.UpdatedAt))

	resp = s.do(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "task deleted", decode[MessageResponse](t, resp).Message)

	resp = s.do(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", b.ID), "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, resp).Error)

	events := s.waitEvents(t, 4)
	require.Len(t, events, 4)
	assert.Equal(t, task.EventCreated, events[0].Type)
	assert.Equal(t, a.ID, events[0].Task.ID)
	assert.Equal(t, task.EventCreated, events[1].Type)
	assert.Equal(t, task.EventUpdated, events[2].Type)
	assert.Equal(t, task.StatusCompleted, events[2].Task.Status)
	assert.Equal(t, task.EventDeleted, events[3].Type)
	assert.Equal(t, b.ID, events[3].TaskID)

	// The failed delete must not produce an event.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, s.conn.received(), 4)
}

func TestAPI_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "missing title", body: `{"description":"x"}`, code: "validation_error"},
		{name: "blank title", body: `{"title":"   "}`, code: "validation_error"},
		{name: "title too long", body: fmt.Sprintf(`{"title":%q}`, strings.Repeat("a", task.MaxTitleLength+1)), code: "validation_error"},
		{name: "malformed json", body: `{"title":`, code: "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/tasks", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Error)
		})
	}

	assert.Empty(t, s.conn.received())
}

func TestAPI_UpdateErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPut, "/api/tasks/abc", `{"title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_id", decode[ErrorResponse](t, resp).Error)

	resp = s.do(t, http.MethodPut, "/api/tasks/999", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/tasks", `{"title":"real"}`)
	created := decode[task.Task](t, resp)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", created.ID), `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, resp).Error)

	resp = s.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", created.ID), `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Only the create reached observers.
	events := s.waitEvents(t, 1)
	assert.Len(t, events, 1)
}

func TestAPI_UpdateWithEmptyBody(t *testing.T) {
	s := newTestServer(t)

	created := decode[task.Task](t, s.do(t, http.MethodPost, "/api/tasks", `{"title":"keep"}`))

	resp := s.do(t, http.MethodPut, fmt.Sprintf("/api/tasks/%d", created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[task.Task](t, resp)
	assert.Equal(t, "keep", updated.Title)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestAPI_DeleteInvalidID(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodDelete, "/api/tasks/0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type failingService struct{}

func (failingService) List(context.Context) ([]task.Task, bool, error) {
	return nil, false, fmt.Errorf("%w: connection refused", task.ErrStore)
}

func (failingService) Create(context.Context, task.CreateRequest) (*task.Task, error) {
	return nil, fmt.Errorf("%w: connection refused", task.ErrStore)
}

func (failingService) Update(context.Context, int64, task.UpdateRequest) (*task.Task, error) {
	return nil, errors.New("unexpected")
}

func (failingService) Delete(context.Context, int64) error {
	return fmt.Errorf("%w: connection refused", task.ErrStore)
}

func TestAPI_StoreFailuresMapTo500(t *testing.T) {
	m := NewModule(0, 4, zap.NewNop())
	m.tasks = failingService{}
	m.hub = broadcast.NewHub(nil)
	app := m.newApp()

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/tasks", nil),
		httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"x"}`)),
		httptest.NewRequest(http.MethodPut, "/api/tasks/1", strings.NewReader(`{"title":"x"}`)),
		httptest.NewRequest(http.MethodDelete, "/api/tasks/1", nil),
	}
	for _, req := range requests {
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, req.Method)
		assert.Equal(t, "internal_error", decode[ErrorResponse](t, resp).Error)
	}
}

func TestAPI_CacheStats(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/cache/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Cache  cache.StatsSnapshot `json:"cache"`
		Fanout broadcast.HubStats  `json:"fanout"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Cache.Enabled)
	assert.Equal(t, 1, body.Fanout.Observers)

	resp = s.do(t, http.MethodPost, "/api/cache/stats/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type staticCheck struct {
	name    string
	healthy bool
}

func (c staticCheck) Name() string { return c.name }

func (c staticCheck) Health(context.Context) mono.HealthStatus {
	return mono.HealthStatus{Healthy: c.healthy}
}

func TestAPI_Health(t *testing.T) {
	s := newTestServer(t)
	s.module.AddHealthChecks(staticCheck{name: "cache", healthy: true})

	resp := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode[HealthResponse](t, resp).Status)

	s.module.AddHealthChecks(staticCheck{name: "board", healthy: false})
	resp = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "unhealthy", health.Status)
	assert.False(t, health.Modules["board"].Healthy)
}

func TestAPI_WebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestAPI_WebSocketReceivesEvents(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.app.Listener(ln) }()
	t.Cleanup(func() { _ = s.app.Shutdown() })

	wsURL := "ws://" + ln.Addr().String() + "/ws"
	client, _, err := fws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	// The in-process recorder plus the socket client.
	require.Eventually(t, func() bool { return s.hub.Stats().Open == 2 }, 2*time.Second, 5*time.Millisecond)

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/tasks", "application/json", strings.NewReader(`{"title":"pushed"}`))
	require.NoError(t, err)
	created := decode[task.Task](t, resp)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var evt task.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, task.EventCreated, evt.Type)
	require.NotNil(t, evt.Task)
	assert.Equal(t, created.ID, evt.Task.ID)
	assert.Equal(t, "pushed", evt.Task.Title)

	require.NoError(t, client.WriteMessage(fws.CloseMessage, fws.FormatCloseMessage(fws.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}
