package scenario

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/driver"
	"github.com/ahrdadan/pagecheck/internal/errs"
	"github.com/ahrdadan/pagecheck/internal/page"
	"github.com/ahrdadan/pagecheck/internal/report"
)

// DefaultScenarioTimeout bounds one scenario when none is configured.
const DefaultScenarioTimeout = 2 * time.Minute

// SessionFactory opens a fresh browser session. The returned close func
// releases it.
type SessionFactory func(ctx context.Context) (driver.Driver, func() error, error)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	BaseURL         string
	Keyword         string
	ScenarioTimeout time.Duration
}

// Runner executes scenarios strictly one after another, each in its own
// session with its own page object.
type Runner struct {
	sessions SessionFactory
	opts     RunnerOptions
	recorder *report.Recorder
	logger   *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(sessions SessionFactory, opts RunnerOptions, recorder *report.Recorder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ScenarioTimeout <= 0 {
		opts.ScenarioTimeout = DefaultScenarioTimeout
	}
	return &Runner{
		sessions: sessions,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
	}
}

// Run executes scenarios and returns the finished run. A cancelled ctx stops
// the run before the next scenario; the scenarios already done are kept.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*report.Run, error) {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}

	run := report.NewRun(r.opts.BaseURL, r.opts.Keyword, names)
	log := r.logger.With(zap.String("run_id", run.ID))
	log.Info("run started", zap.Strings("scenarios", names), zap.String("base_url", r.opts.BaseURL))
	r.recorder.Begin(ctx, run)

	for _, sc := range scenarios {
		if ctx.Err() != nil {
			log.Warn("run cancelled", zap.Error(ctx.Err()))
			break
		}

		r.recorder.ScenarioStarted(ctx, run.ID, sc.Name)
		start := time.Now()
		err := r.runOne(ctx, sc, log.With(zap.String("scenario", sc.Name)))
		res := report.NewResult(sc.Name, start, err)

		if err != nil {
			log.Error("scenario failed",
				zap.String("scenario", sc.Name),
				zap.String("code", string(res.ErrorCode)),
				zap.Duration("duration", res.Duration),
				zap.Error(err),
			)
		} else {
			log.Info("scenario passed", zap.String("scenario", sc.Name), zap.Duration("duration", res.Duration))
		}
		r.recorder.ScenarioFinished(ctx, run.ID, res)
	}

	// Finishing must happen even after cancellation.
	final, err := r.recorder.Finish(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return nil, err
	}
	log.Info("run finished", zap.String("status", string(final.Status)), zap.Int("failed", final.Failed()))
	return final, nil
}

func (r *Runner) runOne(ctx context.Context, sc Scenario, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.ScenarioTimeout)
	defer cancel()

	drv, closeSession, err := r.sessions(ctx)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to open browser session", err)
	}
	defer func() {
		if cerr := closeSession(); cerr != nil {
			log.Warn("failed to close browser session", zap.Error(cerr))
		}
	}()

	base, err := page.NewBase(drv, r.opts.BaseURL, log)
	if err != nil {
		return err
	}
	return sc.Run(ctx, page.NewSearchPage(base), r.opts.Keyword)
}
