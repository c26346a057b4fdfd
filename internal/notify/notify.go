// Package notify implements the Notification Engine (§4.8): threshold
// tracking, cooldown dedup, category gating, desktop dispatch, byte-offset
// JSONL error scanning, and plan-ready debounce detection.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category is the notification category enum (§6.3).
type Category string

const (
	CategoryContext     Category = "context"
	CategoryOperation   Category = "operation"
	CategoryPlan        Category = "plan"
	CategoryHandoff     Category = "handoff"
	CategoryAutoCompact Category = "auto-compact"
	CategoryBugAlert    Category = "bug-alert"
)

// Priority is the notification urgency.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Notification is one fired alert, kept in the engine's history.
type Notification struct {
	ID        string
	Category  Category
	SessionID string
	Title     string
	Body      string
	Priority  Priority
	FiredAt   time.Time
}

// Dispatcher hands a Notification to the OS and reports back the user's
// response ("activate", an action label, or "dismissed").
type Dispatcher interface {
	Dispatch(n Notification) string
}

const historyLimit = 50

var defaultCooldown = 30 * time.Second
var bugAlertCooldown = 120 * time.Second

// Engine owns notification dispatch, dedup state, and history. All public
// methods serialize through mu (§5: per-component serialisation).
type Engine struct {
	mu sync.Mutex

	cfg   Config
	store *ConfigStore

	dispatcher    Dispatcher
	focusTerminal func(sessionID string) error

	history []Notification

	firedThresholds map[string]map[int]bool
	cooldowns       map[string]time.Time
	errTrackers     map[string]*errTracker
	planStates      map[string]*planState
}

// New constructs an Engine. store may be nil (config is never persisted);
// dispatcher may be nil (notifications are recorded in history but never
// shown); focusTerminal may be nil (click-to-focus is a no-op).
func New(cfg Config, store *ConfigStore, dispatcher Dispatcher, focusTerminal func(string) error) *Engine {
	return &Engine{
		cfg:             cfg,
		store:           store,
		dispatcher:      dispatcher,
		focusTerminal:   focusTerminal,
		firedThresholds: make(map[string]map[int]bool),
		cooldowns:       make(map[string]time.Time),
		errTrackers:     make(map[string]*errTracker),
		planStates:      make(map[string]*planState),
	}
}

// SetConfig replaces the live config (e.g. after a client edits it via the
// API) and persists it if a store is attached.
func (e *Engine) SetConfig(cfg Config) error {
	e.mu.Lock()
	e.cfg = cfg
	store := e.store
	e.mu.Unlock()

	if store != nil {
		return store.Save(&cfg)
	}
	return nil
}

// Config returns a copy of the live config.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func cooldownKey(cat Category, sessionID, extra string) string {
	return fmt.Sprintf("%s:%s:%s", cat, sessionID, extra)
}

func cooldownFor(cat Category) time.Duration {
	if cat == CategoryBugAlert {
		return bugAlertCooldown
	}
	return defaultCooldown
}

// checkCooldownLocked reports whether key may fire now, recording the fire time
// if so. Must be called with mu held.
func (e *Engine) checkCooldownLocked(key string, cd time.Duration) bool {
	if last, ok := e.cooldowns[key]; ok && time.Since(last) < cd {
		return false
	}
	e.cooldowns[key] = time.Now()
	return true
}

// fireLocked records n in history and, if enabled, hands it to the dispatcher.
// Must be called with mu held; dispatch itself runs outside the lock.
func (e *Engine) fireLocked(n Notification) {
	n.ID = uuid.NewString()
	n.FiredAt = time.Now()

	e.history = append([]Notification{n}, e.history...)
	if len(e.history) > historyLimit {
		e.history = e.history[:historyLimit]
	}

	if !e.cfg.Enabled || e.dispatcher == nil {
		return
	}

	dispatcher := e.dispatcher
	focusTerminal := e.focusTerminal
	go func() {
		resp := dispatcher.Dispatch(n)
		if resp == "" || resp == "dismissed" || n.SessionID == "" {
			return
		}
		if focusTerminal != nil {
			_ = focusTerminal(n.SessionID)
		}
	}()
}

// History returns the FIFO notification history, newest first, capped at
// historyLimit.
func (e *Engine) History() []Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Notification, len(e.history))
	copy(out, e.history)
	return out
}

// OnSessionRemoved purges all per-session dedup and tracking state (§4.8).
func (e *Engine) OnSessionRemoved(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.firedThresholds, sessionID)
	delete(e.errTrackers, sessionID)
	delete(e.planStates, sessionID)
	for key := range e.cooldowns {
		if hasSessionSegment(key, sessionID) {
			delete(e.cooldowns, key)
		}
	}
}

func hasSessionSegment(key, sessionID string) bool {
	prefix := ":" + sessionID + ":"
	for i := 0; i+len(prefix) <= len(key); i++ {
		if key[i:i+len(prefix)] == prefix {
			return true
		}
	}
	return false
}
