// Package natsserver runs a local nats-server with JetStream for run event
// publishing when no server is reachable at the configured URL.
package natsserver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

const (
	dialTimeout  = 2 * time.Second
	readyTimeout = 10 * time.Second
	readyPoll    = 100 * time.Millisecond
)

// Options configures a managed server.
type Options struct {
	Bin          string
	StoreDir     string
	URL          string
	AutoDownload bool
}

// Server manages a local nats-server process.
type Server struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	external bool
}

// New creates a server manager. Nothing starts until Start.
func New(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{opts: opts, logger: logger.Named("nats-server")}
}

// Start spawns nats-server with JetStream unless something already listens
// at the URL, then waits until it accepts connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	host, port, err := ParseURL(s.opts.URL)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(host, port)

	if reachable(addr) {
		s.logger.Info("using running nats server", zap.String("url", s.opts.URL))
		s.running = true
		s.external = true
		return nil
	}

	bin, err := EnsureBinary(ctx, s.opts.Bin, s.opts.AutoDownload, s.logger)
	if err != nil {
		return err
	}

	storeDir, err := filepath.Abs(s.opts.StoreDir)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid jetstream store dir", err)
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, "failed to create jetstream store dir", err)
	}

	out := zap.NewStdLog(s.logger).Writer()
	cmd := exec.Command(bin, "-js", "-sd", storeDir, "-a", host, "-p", port)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return errs.Wrap(errs.Internal, "failed to start nats-server", err)
	}
	s.cmd = cmd

	if err := waitReachable(ctx, addr); err != nil {
		s.kill()
		return err
	}

	s.running = true
	s.logger.Info("nats server started",
		zap.String("url", s.opts.URL),
		zap.String("store_dir", storeDir),
		zap.Int("pid", cmd.Process.Pid),
	)
	return nil
}

// Stop kills a spawned server. A server found already running is left alone.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	if s.external {
		s.external = false
		return nil
	}

	s.kill()
	s.logger.Info("nats server stopped")
	return nil
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// External reports whether Start found a server it did not spawn.
func (s *Server) External() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.external
}

// URL returns the client URL.
func (s *Server) URL() string {
	return s.opts.URL
}

func (s *Server) kill() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		s.logger.Warn("failed to kill nats-server", zap.Error(err))
	}
	// Wait reports the kill signal as an error.
	_ = s.cmd.Wait()
	s.cmd = nil
}

func reachable(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func waitReachable(ctx context.Context, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()

	for {
		if reachable(addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Timeout, "nats-server did not become ready at "+addr, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ParseURL splits a nats://host:port URL.
func ParseURL(raw string) (host, port string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "nats" || u.Hostname() == "" || u.Port() == "" {
		return "", "", errs.New(errs.InvalidArgument, fmt.Sprintf("invalid nats url %q, want nats://host:port", raw))
	}
	return u.Hostname(), u.Port(), nil
}
