package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *clock) {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl.now = c.now
	return rl, c
}

func TestRateLimiter_Window(t *testing.T) {
	rl, c := newLimiter(t, RateLimitConfig{Requests: 3, Window: time.Minute, Burst: 10})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"), "request %d", i)
		c.advance(10 * time.Second)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients are independent")

	info := rl.Info("a")
	assert.Equal(t, 3, info.Limit)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), info.ResetAt)

	// The first request leaves the window.
	c.advance(31 * time.Second)
	assert.Equal(t, 1, rl.Info("a").Remaining)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_Burst(t *testing.T) {
	rl, c := newLimiter(t, RateLimitConfig{Requests: 100, Window: time.Minute, Burst: 2})

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	c.advance(1100 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiter_ResetAndCleanup(t *testing.T) {
	rl, c := newLimiter(t, RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1})

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	rl.Reset("a")
	assert.True(t, rl.Allow("a"))

	c.advance(2 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	assert.Empty(t, rl.windows)
	rl.mu.Unlock()

	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newLimiter(t, RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 10})

	app := fiber.New()
	app.Use(RateLimit(rl))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	do := func() *http.Response {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "k1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	first := do()
	assert.Equal(t, fiber.StatusOK, first.StatusCode)
	assert.Equal(t, "2", first.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Remaining"))

	assert.Equal(t, fiber.StatusOK, do().StatusCode)

	limited := do()
	assert.Equal(t, fiber.StatusTooManyRequests, limited.StatusCode)
	assert.Equal(t, "0", limited.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))
}

func TestHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(Headers())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(RequestIDKey).(string))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	_, err = uuid.Parse(resp.Header.Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestIPAllowlist(t *testing.T) {
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

	open := fiber.New()
	open.Use(IPAllowlist(nil))
	open.Get("/", handler)
	resp, err := open.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	closed := fiber.New()
	closed.Use(IPAllowlist([]string{"10.9.9.9"}))
	closed.Get("/", handler)
	resp, err = closed.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
