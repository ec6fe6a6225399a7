package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/pagecheck/internal/api"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/report"
	"github.com/ahrdadan/pagecheck/internal/security"
)

type fixture struct {
	app   *fiber.App
	store *report.Store
	rec   *report.Recorder
}

func setupTestApp(t *testing.T) *fixture {
	t.Helper()
	store := report.NewStore(time.Hour, time.Hour, nil)
	t.Cleanup(store.Stop)
	hub := report.NewEventHub()

	return &fixture{
		app:   api.NewApp(api.NewHandler(store, hub, nil)),
		store: store,
		rec:   report.NewRecorder(store, hub, nil),
	}
}

func decode(t *testing.T, body io.Reader) api.Response {
	t.Helper()
	var resp api.Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	f := setupTestApp(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.True(t, body.Success)
	assert.Equal(t, "ok", body.Data.(map[string]interface{})["status"])
}

func TestNewApp_Middleware(t *testing.T) {
	store := report.NewStore(time.Hour, time.Hour, nil)
	t.Cleanup(store.Stop)
	rl := security.NewRateLimiter(security.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1})
	t.Cleanup(rl.Stop)

	app := api.NewApp(api.NewHandler(store, report.NewEventHub(), nil), security.RateLimit(rl))

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(security.RequestIDHeader))

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestBrowserStatus_NoBrowser(t *testing.T) {
	f := setupTestApp(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/browser/status", nil))
	require.NoError(t, err)

	body := decode(t, resp.Body)
	assert.Equal(t, false, body.Data.(map[string]interface{})["running"])
}

func TestRuns_ListAndGet(t *testing.T) {
	f := setupTestApp(t)
	ctx := context.Background()

	run := report.NewRun("http://localhost:8080", "Dogs", []string{"search-shows-results"})
	f.rec.Begin(ctx, run)
	f.rec.ScenarioFinished(ctx, run.ID, report.NewResult("search-shows-results", time.Now(), nil))
	_, err := f.rec.Finish(ctx, run.ID)
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	list := decode(t, resp.Body)
	require.Len(t, list.Data, 1)

	resp, err = f.app.Test(httptest.NewRequest("GET", "/pagecheck/runs/"+run.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		Success bool       `json:"success"`
		Data    report.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, run.ID, got.Data.ID)
	assert.Equal(t, report.StatusPassed, got.Data.Status)
	require.Len(t, got.Data.Results, 1)
	assert.Equal(t, "search-shows-results", got.Data.Results[0].Scenario)
}

func TestGetRun_NotFound(t *testing.T) {
	f := setupTestApp(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/runs/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "run not found")
}

func TestErrorHandler_MapsCodes(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Get("/invalid", func(c *fiber.Ctx) error { return errs.New(errs.InvalidArgument, "bad") })
	app.Get("/timeout", func(c *fiber.Ctx) error { return errs.New(errs.Timeout, "slow") })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "tea") })
	app.Get("/plain", func(c *fiber.Ctx) error { return io.ErrUnexpectedEOF })

	cases := map[string]int{
		"/invalid": fiber.StatusBadRequest,
		"/timeout": fiber.StatusGatewayTimeout,
		"/fiber":   fiber.StatusTeapot,
		"/plain":   fiber.StatusInternalServerError,
	}
	for path, want := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestStreamEvents_FinishedRun(t *testing.T) {
	f := setupTestApp(t)
	ctx := context.Background()

	run := report.NewRun("http://localhost:8080", "Dogs", nil)
	f.rec.Begin(ctx, run)
	_, err := f.rec.Finish(ctx, run.ID)
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/runs/"+run.ID+"/events", nil))
	require.NoError(t, err)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"status"`)
	assert.Contains(t, lines[0], `"status":"passed"`)
}

func TestStreamEvents_Unknown(t *testing.T) {
	f := setupTestApp(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/runs/nope/events", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	f := setupTestApp(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/pagecheck/ws?run_id=x", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestWebSocket_StreamsUntilFinished(t *testing.T) {
	f := setupTestApp(t)
	ctx := context.Background()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })

	run := report.NewRun("http://localhost:8080", "Dogs", []string{"one"})
	f.rec.Begin(ctx, run)

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/pagecheck/ws?run_id="+run.ID, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first report.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, report.EventStatus, first.Type)
	assert.Equal(t, report.StatusRunning, first.Status)

	// The handler subscribed before sending the status, so nothing is lost.
	f.rec.ScenarioStarted(ctx, run.ID, "one")
	f.rec.ScenarioFinished(ctx, run.ID, report.NewResult("one", time.Now(), nil))
	_, err = f.rec.Finish(ctx, run.ID)
	require.NoError(t, err)

	var types []report.EventType
	for {
		var e report.Event
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		types = append(types, e.Type)
	}
	assert.Equal(t, []report.EventType{
		report.EventScenarioStarted,
		report.EventScenarioPassed,
		report.EventRunFinished,
	}, types)
}

func TestWebSocket_UnknownRun(t *testing.T) {
	f := setupTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/pagecheck/ws?run_id=missing", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var resp api.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "run not found")
}
