// Package gitdiverge implements the Branch Divergence Service (§4.6):
// periodic ahead/behind/dirty computation for every (repo_root, branch)
// pair a session's workspace touches.
package gitdiverge

import (
	"context"
	"sync"
	"time"

	"github.com/gregory-lime/jacques/internal/shell"
)

// Result is a single divergence computation.
type Result struct {
	Ahead  int
	Behind int
	Dirty  bool
}

type group struct {
	repoRoot string
	branch   string
}

// Config tunes the poll cadence and debounce window.
type Config struct {
	PollInterval time.Duration
	Debounce     time.Duration
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second, Debounce: 3 * time.Second}
}

// Service tracks watched (cwd, repo_root, branch) triples and recomputes
// divergence for each distinct group on a timer, overlap-suppressed per
// group via the monitor's ticker-loop idiom.
type Service struct {
	runner   shell.Runner
	cfg      Config
	onUpdate func(repoRoot, branch string, result Result)

	mu             sync.Mutex
	cwds           map[string]group
	checking       map[group]bool
	debounceTimers map[group]*time.Timer
	last           map[group]Result
}

// New constructs a Service. onUpdate fires whenever a group's computed
// result changes from its previously reported value.
func New(runner shell.Runner, cfg Config, onUpdate func(repoRoot, branch string, result Result)) *Service {
	return &Service{
		runner:         runner,
		cfg:            cfg,
		onUpdate:       onUpdate,
		cwds:           make(map[string]group),
		checking:       make(map[group]bool),
		debounceTimers: make(map[group]*time.Timer),
		last:           make(map[group]Result),
	}
}

// Track registers cwd as belonging to (repoRoot, branch), scheduling a
// debounced recompute of that group.
func (s *Service) Track(cwd, repoRoot, branch string) {
	if repoRoot == "" || branch == "" {
		return
	}
	g := group{repoRoot: repoRoot, branch: branch}

	s.mu.Lock()
	s.cwds[cwd] = g
	s.mu.Unlock()

	s.RequestUpdate(repoRoot, branch)
}

// Untrack removes cwd from tracking.
func (s *Service) Untrack(cwd string) {
	s.mu.Lock()
	delete(s.cwds, cwd)
	s.mu.Unlock()
}

// Start runs the periodic poll loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = DefaultConfig().PollInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pollAll(ctx)
			}
		}
	}()
}

func (s *Service) pollAll(ctx context.Context) {
	s.mu.Lock()
	seen := make(map[group]bool)
	groups := make([]group, 0, len(s.cwds))
	for _, g := range s.cwds {
		if !seen[g] {
			seen[g] = true
			groups = append(groups, g)
		}
	}
	s.mu.Unlock()

	for _, g := range groups {
		s.check(ctx, g)
	}
}

// RequestUpdate schedules a debounced recompute of (repoRoot, branch) —
// used when a session's activity event suggests the working tree changed,
// so the next poll doesn't need to wait out the full interval.
func (s *Service) RequestUpdate(repoRoot, branch string) {
	g := group{repoRoot: repoRoot, branch: branch}
	debounce := s.cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultConfig().Debounce
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.debounceTimers[g]; ok {
		t.Stop()
	}
	s.debounceTimers[g] = time.AfterFunc(debounce, func() {
		s.mu.Lock()
		delete(s.debounceTimers, g)
		s.mu.Unlock()
		s.check(context.Background(), g)
	})
}

func (s *Service) check(ctx context.Context, g group) {
	s.mu.Lock()
	if s.checking[g] {
		s.mu.Unlock()
		return
	}
	s.checking[g] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.checking, g)
		s.mu.Unlock()
	}()

	sctx, cancel := shell.StatusContext(ctx)
	defer cancel()

	base := defaultBranch(sctx, s.runner, g.repoRoot)
	ahead, behind, err := aheadBehind(sctx, s.runner, g.repoRoot, g.branch, base)
	if err != nil {
		return
	}
	dirty, _ := isDirty(sctx, s.runner, g.repoRoot)

	result := Result{Ahead: ahead, Behind: behind, Dirty: dirty}

	s.mu.Lock()
	prev, existed := s.last[g]
	changed := !existed || prev != result
	s.last[g] = result
	s.mu.Unlock()

	if changed && s.onUpdate != nil {
		s.onUpdate(g.repoRoot, g.branch, result)
	}
}
