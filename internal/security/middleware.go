// Package security holds the HTTP middleware in front of the run status API.
package security

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the fiber.Ctx locals key holding the request id.
const RequestIDKey = "requestID"

// RateLimit rejects clients over the limiter's budget with 429. Clients are
// identified by X-API-Key when sent, otherwise by IP.
func RateLimit(rl *RateLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		client := c.Get("X-API-Key")
		if client == "" {
			client = c.IP()
		}

		allowed := rl.Allow(client)
		info := rl.Info(client)

		c.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			retry := max(int64(time.Until(info.ResetAt).Seconds()), 1)
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retry, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":     false,
				"error":       "rate limit exceeded",
				"retry_after": retry,
			})
		}
		return c.Next()
	}
}

// Headers sets the standard hardening headers and a request id, reusing the
// caller's X-Request-ID when present.
func Headers() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Content-Security-Policy", "default-src 'self'")

		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Locals(RequestIDKey, id)

		return c.Next()
	}
}

// IPAllowlist rejects clients not in ips with 403. An empty list allows all.
func IPAllowlist(ips []string) fiber.Handler {
	allowed := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		allowed[ip] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if len(allowed) == 0 {
			return c.Next()
		}
		if _, ok := allowed[c.IP()]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "access denied",
			})
		}
		return c.Next()
	}
}
