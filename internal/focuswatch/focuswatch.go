// Package focuswatch implements the Terminal-focus Watcher (§4.11): a poll
// loop that asks the OS which window is frontmost, walks that window's
// owning process up to a PID any registered session recognizes, and
// updates the registry's focused session accordingly.
package focuswatch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gregory-lime/jacques/internal/termkey"
)

// parseParentPID extracts the ppid (field 4) from the content of
// /proc/<pid>/stat. The comm field (field 2) is parenthesized and may
// contain spaces, so the closing paren is located first.
func parseParentPID(stat string) int {
	idx := strings.LastIndex(stat, ")")
	if idx < 0 || idx+2 >= len(stat) {
		return 0
	}
	rest := strings.TrimSpace(stat[idx+1:])
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return 0
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return ppid
}

// Registry is the subset of *session.Registry the watcher depends on.
type Registry interface {
	GetAllSessions() []*session.Session
	FindSessionByTerminalKey(key string) *session.Session
	SetFocusedSession(id string)
	GetFocusedSessionID() string
}

// Config tunes the poll cadence (§4.11): tighter while a session is
// already focused, looser while idle.
type Config struct {
	FocusedInterval time.Duration
	IdleInterval    time.Duration
	MaxWalkDepth    int
}

// DefaultConfig returns the spec's defaults: 500ms focused, 1500ms idle.
func DefaultConfig() Config {
	return Config{FocusedInterval: 500 * time.Millisecond, IdleInterval: 1500 * time.Millisecond, MaxWalkDepth: 10}
}

// Watcher polls the OS for the frontmost window's owning process.
type Watcher struct {
	cfg      Config
	registry Registry

	mu        sync.Mutex
	lastFocus string
}

// New constructs a Watcher.
func New(cfg Config, registry Registry) *Watcher {
	return &Watcher{cfg: cfg, registry: registry}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		for {
			interval := w.cfg.IdleInterval
			if w.registry.GetFocusedSessionID() != "" {
				interval = w.cfg.FocusedInterval
			}

			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				w.tick()
			}
		}
	}()
}

func (w *Watcher) tick() {
	pid, ok := frontmostWindowPID()
	if !ok {
		return
	}

	sess := w.findSessionForPID(pid)
	if sess == nil {
		return
	}

	w.mu.Lock()
	if w.lastFocus == sess.SessionID {
		w.mu.Unlock()
		return
	}
	w.lastFocus = sess.SessionID
	w.mu.Unlock()

	w.registry.SetFocusedSession(sess.SessionID)
}

// findSessionForPID walks up the process tree from pid (bounded by
// MaxWalkDepth to avoid runaway loops on a corrupt process tree), matching
// against every registered session's terminal PID or terminal_key.
func (w *Watcher) findSessionForPID(pid int) *session.Session {
	maxDepth := w.cfg.MaxWalkDepth
	if maxDepth <= 0 {
		maxDepth = DefaultConfig().MaxWalkDepth
	}

	current := pid
	for i := 0; i < maxDepth; i++ {
		key := string(termkey.PID) + ":" + strconv.Itoa(current)
		if sess := w.registry.FindSessionByTerminalKey(key); sess != nil {
			return sess
		}
		for _, sess := range w.registry.GetAllSessions() {
			if sess.Terminal != nil && sess.Terminal.PID == current {
				return sess
			}
		}

		parent := getParentPID(current)
		if parent <= 1 || parent == current {
			break
		}
		current = parent
	}
	return nil
}
