package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/api"
	"github.com/ahrdadan/pagecheck/internal/browser"
	"github.com/ahrdadan/pagecheck/internal/config"
	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/natsserver"
	"github.com/ahrdadan/pagecheck/internal/observability"
	"github.com/ahrdadan/pagecheck/internal/report"
	"github.com/ahrdadan/pagecheck/internal/scenario"
	"github.com/ahrdadan/pagecheck/internal/security"
)

// errRunFailed is returned after a run that finished with failures.
var errRunFailed = errors.New("run failed")

const storeCleanupInterval = time.Minute

func newRunCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scenarios against site.base_url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			scenarios, err := scenario.Select(cfg.Site.Scenarios)
			if err != nil {
				return err
			}

			logger := observability.NewStderrLogger(cfg.Logger)
			defer func() { _ = logger.Sync() }()

			run, err := execute(cmd.Context(), cfg, scenarios, logger)
			if err != nil {
				return err
			}

			if asJSON {
				err = writeJSON(cmd.OutOrStdout(), run)
			} else {
				err = writeSummary(cmd.OutOrStdout(), run)
			}
			if err != nil {
				return err
			}

			if run.Status != report.StatusPassed {
				return errRunFailed
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("base-url", "", "base URL of the site under test")
	f.String("keyword", "", "search keyword")
	f.StringSlice("scenario", nil, "scenario to run, repeatable (default all)")
	f.String("browser-mode", "", "launch a local browser or connect to a remote one: launch, remote")
	f.String("control-url", "", "remote browser DevTools URL")
	f.Bool("headless", true, "run the launched browser headless")
	f.Bool("api", false, "serve the run status API while running")
	f.Int("api-port", 0, "run status API port")
	f.Bool("nats", false, "publish run events to NATS JetStream")
	f.BoolVar(&asJSON, "json", false, "print the run as JSON")

	mustBind(c.v, "site.base_url", f.Lookup("base-url"))
	mustBind(c.v, "site.search_keyword", f.Lookup("keyword"))
	mustBind(c.v, "site.scenarios", f.Lookup("scenario"))
	mustBind(c.v, "browser.mode", f.Lookup("browser-mode"))
	mustBind(c.v, "browser.control_url", f.Lookup("control-url"))
	mustBind(c.v, "browser.headless", f.Lookup("headless"))
	mustBind(c.v, "api.enabled", f.Lookup("api"))
	mustBind(c.v, "api.port", f.Lookup("api-port"))
	mustBind(c.v, "nats.enabled", f.Lookup("nats"))
	return cmd
}

// execute wires the browser, reporting and optional API and NATS around one
// run and tears them down afterwards.
func execute(ctx context.Context, cfg *config.Config, scenarios []scenario.Scenario, logger *zap.Logger) (*report.Run, error) {
	logger.Info("starting pagecheck", zap.String("version", config.Version))

	client, err := newBrowserClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Stop(); err != nil {
			logger.Warn("failed to stop browser", zap.Error(err))
		}
	}()

	store := report.NewStore(cfg.API.ResultTTL, storeCleanupInterval, logger)
	defer store.Stop()
	hub := report.NewEventHub()
	defer hub.Close()

	var publishers []report.Publisher
	if cfg.NATS.Enabled {
		pub, stop, err := startNATS(ctx, cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		defer stop()
		publishers = append(publishers, pub)
		// Drain before the server goes away.
		defer pub.Close()
	}

	if cfg.API.Enabled {
		stop, err := startAPI(cfg.API, api.NewHandler(store, hub, client), logger)
		if err != nil {
			return nil, err
		}
		defer stop()
	}

	sessions := func(ctx context.Context) (driver.Driver, func() error, error) {
		s, err := browser.OpenSession(ctx, client, cfg.Site.BaseURL, cfg.Browser.Page)
		if err != nil {
			return nil, nil, err
		}
		return s.Driver, s.Close, nil
	}

	runner := scenario.NewRunner(sessions, scenario.RunnerOptions{
		BaseURL:         cfg.Site.BaseURL,
		Keyword:         cfg.Site.SearchKeyword,
		ScenarioTimeout: cfg.Browser.ScenarioTimeout,
	}, report.NewRecorder(store, hub, logger, publishers...), logger.Named("runner"))

	run, err := runner.Run(ctx, scenarios)
	if err != nil {
		return nil, err
	}

	if cfg.API.Enabled && cfg.API.Linger > 0 {
		logger.Info("run status API stays up", zap.Duration("linger", cfg.API.Linger), zap.String("addr", cfg.API.Addr()))
		select {
		case <-ctx.Done():
		case <-time.After(cfg.API.Linger):
		}
	}
	return run, nil
}

func newBrowserClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.Client, error) {
	if cfg.Browser.Mode == config.ModeRemote {
		m, err := browser.NewManager(cfg.Browser.ControlURL, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	bin, err := browser.EnsureChrome(ctx, browser.InstallOptions{
		Bin:         cfg.Browser.Bin,
		Revision:    cfg.Browser.Revision,
		AutoInstall: cfg.Browser.AutoInstall,
		InstallDeps: cfg.Browser.InstallDeps,
	}, logger)
	if err != nil {
		return nil, err
	}

	return browser.NewChromeManager(browser.ChromeOptions{
		Bin:        bin,
		Headless:   cfg.Browser.Headless,
		SlowMotion: cfg.Browser.SlowMotion,
		Proxy:      cfg.Browser.Proxy,
	}, logger), nil
}

// startNATS connects the publisher, first starting a local server when
// nats.managed is set. stop releases the server.
func startNATS(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*report.NATSPublisher, func(), error) {
	stop := func() {}
	if cfg.Managed {
		srv := natsserver.New(natsserver.Options{
			Bin:          cfg.Bin,
			StoreDir:     cfg.StoreDir,
			URL:          cfg.URL,
			AutoDownload: cfg.AutoDownload,
		}, logger)
		if err := srv.Start(ctx); err != nil {
			return nil, nil, err
		}
		stop = func() {
			if err := srv.Stop(); err != nil {
				logger.Warn("failed to stop nats server", zap.Error(err))
			}
		}
	}

	pub, err := report.NewNATSPublisher(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, nil, err
	}
	return pub, stop, nil
}

// startAPI serves the run status API in the background.
func startAPI(cfg config.APIConfig, handler *api.Handler, logger *zap.Logger) (func(), error) {
	var mw []fiber.Handler
	var limiter *security.RateLimiter
	if len(cfg.AllowedIPs) > 0 {
		mw = append(mw, security.IPAllowlist(cfg.AllowedIPs))
	}
	if cfg.RateLimit.Requests > 0 {
		limiter = security.NewRateLimiter(security.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
			Burst:    cfg.RateLimit.Burst,
		})
		mw = append(mw, security.RateLimit(limiter))
	}

	app := api.NewApp(handler, mw...)
	addr := cfg.Addr()
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	// Surface an immediate bind failure instead of running without the API.
	select {
	case err := <-errCh:
		if limiter != nil {
			limiter.Stop()
		}
		return nil, fmt.Errorf("failed to start run status API on %s: %w", addr, err)
	case <-time.After(200 * time.Millisecond):
	}
	logger.Info("run status API listening", zap.String("addr", addr))

	return func() {
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Warn("failed to shut down run status API", zap.Error(err))
		}
		if limiter != nil {
			limiter.Stop()
		}
	}, nil
}

func writeSummary(w io.Writer, run *report.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s against %s (keyword %q)\n", run.ID, run.BaseURL, run.Keyword)

	for _, res := range run.Results {
		line := fmt.Sprintf("%s\t%s\t%s", statusLabel(res.Status), res.Scenario, res.Duration.Round(time.Millisecond))
		if res.Error != "" {
			line += fmt.Sprintf("\t[%s] %s", res.ErrorCode, res.Error)
		}
		fmt.Fprintln(tw, line)
	}
	for _, name := range run.Scenarios[len(run.Results):] {
		fmt.Fprintf(tw, "SKIP\t%s\t-\n", name)
	}

	fmt.Fprintf(tw, "%s: %d passed, %d failed, %d not run\n",
		statusLabel(run.Status),
		len(run.Results)-run.Failed(),
		run.Failed(),
		len(run.Scenarios)-len(run.Results),
	)
	return tw.Flush()
}

func statusLabel(s report.Status) string {
	switch s {
	case report.StatusPassed:
		return "PASS"
	case report.StatusFailed:
		return "FAIL"
	}
	return "RUN"
}

func writeJSON(w io.Writer, run *report.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
