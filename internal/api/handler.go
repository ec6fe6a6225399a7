package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/pagecheck/internal/browser"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/report"
)

// Handler serves the run status API.
type Handler struct {
	store   *report.Store
	hub     *report.EventHub
	browser browser.Client
}

// NewHandler creates a new handler. client may be nil when no browser is
// attached, e.g. while serving stored runs only.
func NewHandler(store *report.Store, hub *report.EventHub, client browser.Client) *Handler {
	return &Handler{
		store:   store,
		hub:     hub,
		browser: client,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorHandler is the custom error handler for Fiber. Coded errors map to
// their HTTP status.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	var coded *errs.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.As(err, &coded):
		code = errs.HTTPStatus(coded.Code)
	}

	return c.Status(code).JSON(Response{
		Success: false,
		Error:   err.Error(),
	})
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// BrowserStatus returns browser status
// GET /pagecheck/browser/status
func (h *Handler) BrowserStatus(c *fiber.Ctx) error {
	data := map[string]interface{}{
		"running":  false,
		"endpoint": "",
	}
	if h.browser != nil {
		data["running"] = h.browser.IsRunning()
		data["endpoint"] = h.browser.GetEndpoint()
	}
	return c.JSON(Response{Success: true, Data: data})
}

// ListRuns returns every stored run, newest first.
// GET /pagecheck/runs
func (h *Handler) ListRuns(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data:    h.store.List(),
	})
}

// GetRun returns one run with its results.
// GET /pagecheck/runs/:run_id
func (h *Handler) GetRun(c *fiber.Ctx) error {
	run, err := h.store.Get(c.Params("run_id"))
	if err != nil {
		return err
	}
	return c.JSON(Response{Success: true, Data: run})
}

// StreamEvents streams run events via SSE until the run finishes.
// GET /pagecheck/runs/:run_id/events
func (h *Handler) StreamEvents(c *fiber.Ctx) error {
	runID := c.Params("run_id")

	// Subscribe before reading the run so no event can fall in between.
	events := h.hub.Subscribe(runID)
	run, err := h.store.Get(runID)
	if err != nil {
		h.hub.Unsubscribe(runID, events)
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(runID, events)

		if writeSSE(w, report.StatusEvent(run)) != nil || run.IsFinished() {
			return
		}

		for event := range events {
			if writeSSE(w, event) != nil || event.IsTerminal() {
				return
			}
		}
	})

	return nil
}

func writeSSE(w *bufio.Writer, event report.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

// HandleWebSocket streams run events over a WebSocket. The first message is
// the current run status; the connection closes after the run finishes.
// GET /pagecheck/ws?run_id=...
func (h *Handler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	runID := c.Query("run_id")
	if runID == "" {
		_ = c.WriteJSON(Response{Error: "run_id is required"})
		return
	}

	events := h.hub.Subscribe(runID)
	defer h.hub.Unsubscribe(runID, events)

	run, err := h.store.Get(runID)
	if err != nil {
		_ = c.WriteJSON(Response{Error: err.Error()})
		return
	}

	if err := c.WriteJSON(report.StatusEvent(run)); err != nil || run.IsFinished() {
		return
	}

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}
		if event.IsTerminal() {
			return
		}
	}
}
