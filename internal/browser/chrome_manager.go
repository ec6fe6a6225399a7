package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ChromeOptions configures a locally launched browser.
type ChromeOptions struct {
	Bin        string
	Headless   bool
	SlowMotion time.Duration
	Proxy      string
}

// ChromeManager manages a Chromium/Chrome instance launched by rod.
type ChromeManager struct {
	opts      ChromeOptions
	logger    *zap.Logger
	mu        sync.Mutex
	restartMu sync.Mutex
	launcher  *launcher.Launcher
	browser   *rod.Browser
	wsURL     string
	running   bool
}

// NewChromeManager creates a new Chrome manager. Chrome is not launched until
// Start or the first NewPage.
func NewChromeManager(opts ChromeOptions, logger *zap.Logger) *ChromeManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeManager{
		opts:   opts,
		logger: logger.Named("chrome"),
	}
}

// Start launches Chrome and connects via CDP.
func (m *ChromeManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	l := launcher.New().Headless(m.opts.Headless)
	if m.opts.Bin != "" {
		l.Bin(m.opts.Bin)
	}
	if m.opts.Proxy != "" {
		l.Proxy(m.opts.Proxy)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if m.opts.SlowMotion > 0 {
		browser = browser.SlowMotion(m.opts.SlowMotion)
	}
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	m.launcher = l
	m.browser = browser
	m.wsURL = wsURL
	m.running = true

	m.logger.Info("chrome started",
		zap.String("endpoint", wsURL),
		zap.Bool("headless", m.opts.Headless),
	)
	return nil
}

// Stop closes Chrome and removes its profile directory.
func (m *ChromeManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("failed to close chrome", zap.Error(err))
		}
	}

	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
	}

	m.launcher = nil
	m.browser = nil
	m.wsURL = ""
	m.running = false

	m.logger.Info("chrome stopped")
	return nil
}

// IsRunning reports whether Chrome is running.
func (m *ChromeManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetEndpoint returns the Chrome DevTools endpoint.
func (m *ChromeManager) GetEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsURL
}

// NewPage creates a blank page, restarting Chrome once if the connection
// has dropped.
func (m *ChromeManager) NewPage(ctx context.Context) (*rod.Page, error) {
	if err := m.ensureStarted(); err != nil {
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	page, err := m.current().Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		if !isConnectionError(err) {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}

		m.logger.Warn("chrome connection lost, restarting", zap.Error(err))
		if restartErr := m.restartBrowser(); restartErr != nil {
			return nil, fmt.Errorf("failed to restart chrome after connection error: %w", restartErr)
		}

		page, err = m.current().Context(ctx).Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to create new page: %w", err)
		}
	}

	return page, nil
}

func (m *ChromeManager) current() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

func (m *ChromeManager) ensureStarted() error {
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

func (m *ChromeManager) restartBrowser() error {
	m.restartMu.Lock()
	defer m.restartMu.Unlock()

	if err := m.Stop(); err != nil {
		m.logger.Warn("failed to stop chrome before restart", zap.Error(err))
	}

	return m.Start()
}
