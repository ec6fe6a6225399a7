package browser

import (
	"context"

	"github.com/go-rod/rod"
)

// Client owns a browser process or connection and hands out fresh pages.
type Client interface {
	Start() error
	Stop() error
	IsRunning() bool
	GetEndpoint() string
	NewPage(ctx context.Context) (*rod.Page, error)
}

var (
	_ Client = (*ChromeManager)(nil)
	_ Client = (*Manager)(nil)
)
