package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/pagecheck/internal/security"
)

// NewApp builds the status API app with the standard middleware and routes.
// mw runs after the standard middleware, before any route.
func NewApp(handler *Handler, mw ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pagecheck",
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(security.Headers())
	for _, m := range mw {
		app.Use(m)
	}

	SetupRoutes(app, handler)
	return app
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check (simple path)
	app.Get("/health", handler.HealthCheck)

	pc := app.Group("/pagecheck")
	pc.Get("/browser/status", handler.BrowserStatus)
	pc.Get("/runs", handler.ListRuns)
	pc.Get("/runs/:run_id", handler.GetRun)
	pc.Get("/runs/:run_id/events", handler.StreamEvents)

	// WebSocket endpoint for run events
	app.Use("/pagecheck/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/pagecheck/ws", websocket.New(handler.HandleWebSocket))
}
