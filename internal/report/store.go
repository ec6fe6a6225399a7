package report

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/errs"
)

// DefaultCleanupInterval is how often expired runs are swept.
const DefaultCleanupInterval = time.Hour

// Store is an in-memory run store. Finished runs are kept for ttl.
type Store struct {
	runs        map[string]*Run
	ttl         time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewStore creates a store and starts its cleanup loop. A zero interval uses
// DefaultCleanupInterval.
func NewStore(ttl, cleanupInterval time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		runs:        make(map[string]*Run),
		ttl:         ttl,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

func (s *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, run := range s.runs {
		if run.IsExpired(now) {
			delete(s.runs, id)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Debug("cleaned up expired runs", zap.Int("count", deleted))
	}
	return deleted
}

// Stop stops the cleanup loop. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Save stores a copy of run.
func (s *Store) Save(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok || run.IsExpired(time.Now()) {
		return nil, errs.New(errs.NotFound, "run not found: "+id)
	}
	return run.Clone(), nil
}

// Update applies fn to the stored run under the store lock. Finishing a run
// stamps its expiry.
func (s *Store) Update(id string, fn func(*Run)) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "run not found: "+id)
	}

	fn(run)
	if run.IsFinished() && run.ExpiresAt.IsZero() && s.ttl > 0 {
		end := run.FinishedAt
		if end.IsZero() {
			end = time.Now()
		}
		run.ExpiresAt = end.Add(s.ttl)
	}
	return run.Clone(), nil
}

// List returns every live run, newest first.
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if !run.IsExpired(now) {
			runs = append(runs, run.Clone())
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs
}
