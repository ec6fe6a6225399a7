package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Manager connects to a browser that is already running elsewhere and
// exposes the DevTools protocol, e.g. a browserless or Selenoid container.
type Manager struct {
	controlURL string
	logger     *zap.Logger
	browser    *rod.Browser
	wsURL      string
	mu         sync.Mutex
	restartMu  sync.Mutex
	isRunning  bool
}

// NewManager creates a manager for controlURL, which may be a ws:// debugger
// URL or an http://host:port address to resolve one from.
func NewManager(controlURL string, logger *zap.Logger) (*Manager, error) {
	if strings.TrimSpace(controlURL) == "" {
		return nil, fmt.Errorf("control url is required for a remote browser")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		controlURL: controlURL,
		logger:     logger.Named("remote"),
	}, nil
}

// Start connects to the remote browser.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return nil
	}

	wsURL, err := launcher.ResolveURL(m.controlURL)
	if err != nil {
		return fmt.Errorf("failed to resolve control url %s: %w", m.controlURL, err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	m.browser = browser
	m.wsURL = wsURL
	m.isRunning = true

	m.logger.Info("connected to remote browser", zap.String("endpoint", wsURL))
	return nil
}

// Stop closes the remote browser connection.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		return nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("failed to close browser", zap.Error(err))
		}
	}

	m.browser = nil
	m.wsURL = ""
	m.isRunning = false
	m.logger.Info("remote browser disconnected")
	return nil
}

// IsRunning returns true if the browser is connected
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// GetEndpoint returns the resolved WebSocket endpoint, or the configured
// control URL before the first connection.
func (m *Manager) GetEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.wsURL != "" {
		return m.wsURL
	}
	return m.controlURL
}

// NewPage creates a new browser page
func (m *Manager) NewPage(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureStarted(); err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	page, err := m.current().Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if !isConnectionError(err) {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}

		m.logger.Warn("browser connection lost, reconnecting", zap.Error(err))
		if restartErr := m.restart(); restartErr != nil {
			return nil, fmt.Errorf("failed to reconnect browser after connection error: %w", restartErr)
		}

		page, err = m.current().Context(ctx).Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}
	}

	return page, nil
}

func (m *Manager) current() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

func (m *Manager) ensureStarted() error {
	if m.IsRunning() {
		return nil
	}

	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if m.IsRunning() {
		return nil
	}

	return m.Start()
}

func (m *Manager) restart() error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if err := m.Stop(); err != nil {
		m.logger.Warn("failed to stop browser before reconnect", zap.Error(err))
	}

	return m.Start()
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "eof")
}
