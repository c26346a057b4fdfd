package session

import (
	"context"
	"sync"
	"time"
)

// recentlyEnded implements the §4.4 "recently-ended" guard: a session
// removed via unregisterLocked is remembered for ttl so a late-arriving
// context_update for the same session_id doesn't resurrect it.
type recentlyEnded struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]time.Time
}

func newRecentlyEnded(ttl time.Duration) *recentlyEnded {
	return &recentlyEnded{ttl: ttl, m: make(map[string]time.Time)}
}

func (r *recentlyEnded) mark(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = time.Now()
}

func (r *recentlyEnded) wasRecentlyEnded(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	_, ok := r.m[id]
	return ok
}

func (r *recentlyEnded) purgeLocked() {
	now := time.Now()
	for id, t := range r.m {
		if now.Sub(t) > r.ttl {
			delete(r.m, id)
		}
	}
}

// LivenessChecker probes whether a process is still alive. Implemented by
// internal/procscan so the cleanup sweep doesn't evict an idle session
// whose terminal PID is in fact still running (§4.4).
type LivenessChecker interface {
	IsAlive(pid int) bool
}

// CleanupConfig tunes the periodic idle-eviction sweep.
type CleanupConfig struct {
	SweepInterval time.Duration
	MaxIdle       time.Duration
}

// DefaultCleanupConfig returns the spec's defaults: a 5-minute sweep
// interval and a 60-minute idle ceiling.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{SweepInterval: 5 * time.Minute, MaxIdle: 60 * time.Minute}
}

// StartCleanup runs the periodic sweep until ctx is cancelled. liveness may
// be nil, in which case idle sessions are evicted on age alone.
func (r *Registry) StartCleanup(ctx context.Context, cfg CleanupConfig, liveness LivenessChecker) {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultCleanupConfig().SweepInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultCleanupConfig().MaxIdle
	}

	ticker := time.NewTicker(cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(cfg.MaxIdle, liveness)
			}
		}
	}()
}

// sweep evicts idle sessions older than maxIdle. A session with a known
// terminal PID is only evicted once liveness confirms the process is gone —
// an idle-but-alive terminal is left alone.
func (r *Registry) sweep(maxIdle time.Duration, liveness LivenessChecker) {
	cutoff := time.Now().Add(-maxIdle).UnixMilli()
	for _, sess := range r.GetAllSessions() {
		if sess.Status != StatusIdle || sess.LastActivity >= cutoff {
			continue
		}
		if sess.Terminal != nil && sess.Terminal.PID > 0 && liveness != nil && liveness.IsAlive(sess.Terminal.PID) {
			continue
		}
		r.UnregisterSession(sess.SessionID)
	}
}
