package security

import (
	"sync"
	"time"
)

const cleanupInterval = 5 * time.Minute

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	// Requests is the most requests a client may make per Window.
	Requests int
	Window   time.Duration
	// Burst is the most requests a client may make in any one second.
	Burst int
}

// RateLimiter is a per-client sliding window limiter.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	cfg     RateLimitConfig
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// RateLimitInfo is what the response headers report.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// NewRateLimiter creates a limiter and starts its cleanup loop. Call Stop to
// end the loop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string][]time.Time),
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow records a request for key and reports whether it is within limits.
// Rejected requests are not recorded.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	reqs := rl.prune(key, now)
	if len(reqs) >= rl.cfg.Requests {
		return false
	}

	burstCutoff := now.Add(-time.Second)
	burst := 0
	for _, t := range reqs {
		if t.After(burstCutoff) {
			burst++
		}
	}
	if burst >= rl.cfg.Burst {
		return false
	}

	rl.windows[key] = append(reqs, now)
	return true
}

// Info returns the current limit state for key.
func (rl *RateLimiter) Info(key string) RateLimitInfo {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	reqs := rl.prune(key, now)

	info := RateLimitInfo{
		Limit:     rl.cfg.Requests,
		Remaining: max(rl.cfg.Requests-len(reqs), 0),
		ResetAt:   now,
	}
	if len(reqs) > 0 {
		info.ResetAt = reqs[0].Add(rl.cfg.Window)
	}
	return info
}

// Reset forgets key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// prune drops requests older than the window. Caller holds mu.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.cfg.Window)
	reqs := rl.windows[key]

	i := 0
	for i < len(reqs) && !reqs[i].After(cutoff) {
		i++
	}
	reqs = reqs[i:]
	if len(reqs) == 0 {
		delete(rl.windows, key)
		return nil
	}
	rl.windows[key] = reqs
	return reqs
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key := range rl.windows {
		rl.prune(key, now)
	}
}
