package report

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher forwards run events outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Recorder keeps the store current and fans every event out to the hub and
// the publishers. A failing publisher is logged and never fails the run.
type Recorder struct {
	store      *Store
	hub        *EventHub
	publishers []Publisher
	logger     *zap.Logger
}

// NewRecorder creates a recorder. hub may be nil.
func NewRecorder(store *Store, hub *EventHub, logger *zap.Logger, publishers ...Publisher) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:      store,
		hub:        hub,
		publishers: publishers,
		logger:     logger,
	}
}

// Store returns the run store.
func (r *Recorder) Store() *Store {
	return r.store
}

// Begin saves a new run and announces it.
func (r *Recorder) Begin(ctx context.Context, run *Run) {
	r.store.Save(run)

	e := NewEvent(run.ID, EventRunStarted)
	e.Status = StatusRunning
	r.emit(ctx, e)
}

// ScenarioStarted announces that scenario is about to run.
func (r *Recorder) ScenarioStarted(ctx context.Context, runID, scenario string) {
	e := NewEvent(runID, EventScenarioStarted)
	e.Scenario = scenario
	e.Status = StatusRunning
	r.emit(ctx, e)
}

// ScenarioFinished appends res to the run and announces it.
func (r *Recorder) ScenarioFinished(ctx context.Context, runID string, res Result) {
	if _, err := r.store.Update(runID, func(run *Run) {
		run.Results = append(run.Results, res)
	}); err != nil {
		r.logger.Warn("failed to record scenario result", zap.String("run_id", runID), zap.Error(err))
	}

	typ := EventScenarioPassed
	if res.Status == StatusFailed {
		typ = EventScenarioFailed
	}
	e := NewEvent(runID, typ)
	e.Scenario = res.Scenario
	e.Status = res.Status
	e.Message = res.Error
	r.emit(ctx, e)
}

// Finish closes the run and returns it. The run fails if any scenario
// failed or did not run.
func (r *Recorder) Finish(ctx context.Context, runID string) (*Run, error) {
	run, err := r.store.Update(runID, func(run *Run) {
		run.Status = StatusPassed
		if run.Failed() > 0 || len(run.Results) < len(run.Scenarios) {
			run.Status = StatusFailed
		}
		run.FinishedAt = time.Now()
	})
	if err != nil {
		return nil, err
	}

	e := NewEvent(runID, EventRunFinished)
	e.Status = run.Status
	r.emit(ctx, e)
	return run, nil
}

func (r *Recorder) emit(ctx context.Context, e Event) {
	r.logger.Debug("run event",
		zap.String("run_id", e.RunID),
		zap.String("type", string(e.Type)),
		zap.String("scenario", e.Scenario),
	)

	if r.hub != nil {
		r.hub.Emit(e)
	}
	for _, p := range r.publishers {
		if err := p.Publish(ctx, e); err != nil {
			r.logger.Warn("failed to publish run event",
				zap.String("run_id", e.RunID),
				zap.String("type", string(e.Type)),
				zap.Error(err),
			)
		}
	}
}
