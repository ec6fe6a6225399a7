// Package report records scenario runs and fans their events out to the
// status API, websocket subscribers and NATS JetStream.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

// Status is the state of a run or of one scenario result.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Result is the outcome of one scenario.
type Result struct {
	Scenario  string        `json:"scenario"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	ErrorCode errs.Code     `json:"error_code,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// NewResult builds the result of a scenario that started at start and
// ended with err.
func NewResult(scenario string, start time.Time, err error) Result {
	r := Result{
		Scenario:  scenario,
		Status:    StatusPassed,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
		r.ErrorCode = errs.CodeOf(err)
	}
	return r
}

// Run is one sequential pass over a set of scenarios.
type Run struct {
	ID         string    `json:"run_id"`
	Status     Status    `json:"status"`
	BaseURL    string    `json:"base_url"`
	Keyword    string    `json:"keyword"`
	Scenarios  []string  `json:"scenarios"`
	Results    []Result  `json:"results"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// NewRun creates a running run with a fresh ID.
func NewRun(baseURL, keyword string, scenarios []string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Status:    StatusRunning,
		BaseURL:   baseURL,
		Keyword:   keyword,
		Scenarios: append([]string(nil), scenarios...),
		Results:   []Result{},
		StartedAt: time.Now(),
	}
}

// Failed returns the number of failed results.
func (r *Run) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			n++
		}
	}
	return n
}

// IsFinished reports whether the run has ended.
func (r *Run) IsFinished() bool {
	return r.Status != StatusRunning
}

// IsExpired reports whether a finished run is past its retention.
func (r *Run) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Clone returns a deep copy safe to hand out of the store.
func (r *Run) Clone() *Run {
	c := *r
	c.Scenarios = append([]string(nil), r.Scenarios...)
	c.Results = append([]Result{}, r.Results...)
	return &c
}
