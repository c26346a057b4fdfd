package session

import (
	"sync"
	"testing"
	"time"

	"github.com/gregory-lime/jacques/internal/termkey"
)

// eventRecorder collects registry events under a mutex so tests can safely
// read them from the awaiting-timer goroutine.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// TestDiscoveryThenHookTakeover is scenario 1: registerDiscovered followed
// by registerSession for the same session id upgrades the discovered
// terminal_key to the hook-declared one and keeps the same session.
func TestDiscoveryThenHookTakeover(t *testing.T) {
	rec := &eventRecorder{}
	r := NewRegistry(rec.record, nil, nil)

	sess := r.RegisterDiscovered(DetectedSession{
		SessionID: "S1",
		PID:       42,
		TTY:       "ttys001",
		Cwd:       "/p",
		Project:   "p",
	})
	if sess.TerminalKey != "DISCOVERED:TTY:ttys001:42" {
		t.Fatalf("discovered terminal_key = %q, want DISCOVERED:TTY:ttys001:42", sess.TerminalKey)
	}
	if r.GetFocusedSessionID() != "S1" {
		t.Fatalf("focused = %q, want S1", r.GetFocusedSessionID())
	}

	upgraded := r.RegisterSession(SessionStartEvent{
		SessionID:    "S1",
		Identity:     termkey.Identity{TTY: "/dev/ttys001"},
		TerminalPID:  42,
		SessionTitle: "hello",
	})
	if upgraded.TerminalKey != "TTY:/dev/ttys001" {
		t.Errorf("upgraded terminal_key = %q, want TTY:/dev/ttys001", upgraded.TerminalKey)
	}
	if upgraded.SessionTitle == nil || *upgraded.SessionTitle != "hello" {
		t.Errorf("session_title = %v, want \"hello\"", upgraded.SessionTitle)
	}
	if r.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1 (same session, not a new one)", r.ActiveCount())
	}
}

// TestClearRemovesOldSession is scenario 2: registering a second session on
// the same terminal_key/pid evicts the first, focuses the new one, and
// fires onSessionRemoved exactly once with the outgoing session.
func TestClearRemovesOldSession(t *testing.T) {
	var removedIDs []string
	onRemoved := func(s *Session) error {
		removedIDs = append(removedIDs, s.SessionID)
		return nil
	}
	r := NewRegistry(func(Event) {}, onRemoved, nil)

	r.RegisterSession(SessionStartEvent{
		SessionID:   "S1",
		Identity:    termkey.Identity{TTY: "/dev/ttys001"},
		TerminalPID: 42,
	})
	r.RegisterSession(SessionStartEvent{
		SessionID:   "S2",
		Identity:    termkey.Identity{TTY: "/dev/ttys001"},
		TerminalPID: 42,
	})

	all := r.GetAllSessions()
	if len(all) != 1 || all[0].SessionID != "S2" {
		t.Fatalf("GetAllSessions = %+v, want only S2", all)
	}
	if r.GetFocusedSessionID() != "S2" {
		t.Errorf("focused = %q, want S2", r.GetFocusedSessionID())
	}
	if len(removedIDs) != 1 || removedIDs[0] != "S1" {
		t.Errorf("onSessionRemoved calls = %v, want exactly one call with S1", removedIDs)
	}
}

// TestAwaitingDebounceCancelledByActivity is half of scenario 3: activity
// within the 1s debounce window cancels the pending awaiting timer.
func TestAwaitingDebounceCancelledByActivity(t *testing.T) {
	r := NewRegistry(func(Event) {}, nil, nil)
	r.RegisterSession(SessionStartEvent{SessionID: "S1", Identity: termkey.Identity{PID: 1}})

	fired := make(chan *Session, 1)
	r.SetSessionAwaiting("S1", "Bash", 0, func(s *Session) { fired <- s })

	r.UpdateActivity(ActivityEvent{SessionID: "S1", ToolName: "Bash"})

	select {
	case <-fired:
		t.Fatal("onTimeout fired despite activity cancelling the debounce")
	case <-time.After(1200 * time.Millisecond):
	}

	sess := r.GetSession("S1")
	if sess.Status != StatusWorking {
		t.Errorf("status = %q, want working", sess.Status)
	}
}

// TestAwaitingDebounceFiresWithoutActivity is the other half of scenario 3:
// with no activity, onTimeout fires once after ~1s with status awaiting.
func TestAwaitingDebounceFiresWithoutActivity(t *testing.T) {
	r := NewRegistry(func(Event) {}, nil, nil)
	r.RegisterSession(SessionStartEvent{SessionID: "S1", Identity: termkey.Identity{PID: 1}})

	fired := make(chan *Session, 1)
	r.SetSessionAwaiting("S1", "Bash", 0, func(s *Session) { fired <- s })

	select {
	case s := <-fired:
		if s.Status != StatusAwaiting {
			t.Errorf("onTimeout session status = %q, want awaiting", s.Status)
		}
		if s.LastToolName == nil || *s.LastToolName != "Bash" {
			t.Errorf("onTimeout session last_tool_name = %v, want Bash", s.LastToolName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onTimeout never fired")
	}

	sess := r.GetSession("S1")
	if sess.Status != StatusAwaiting {
		t.Errorf("status after fire = %q, want awaiting", sess.Status)
	}
}

// TestUnregisterSessionRemovesIt exercises explicit unregisterSession and
// confirms onSessionRemoved runs with the outgoing session.
func TestUnregisterSessionRemovesIt(t *testing.T) {
	var got *Session
	onRemoved := func(s *Session) error {
		got = s
		return nil
	}
	r := NewRegistry(func(Event) {}, onRemoved, nil)
	r.RegisterSession(SessionStartEvent{SessionID: "S1", Identity: termkey.Identity{PID: 1}})

	r.UnregisterSession("S1")

	if r.ActiveCount() != 0 {
		t.Errorf("ActiveCount after unregister = %d, want 0", r.ActiveCount())
	}
	if got == nil || got.SessionID != "S1" {
		t.Fatalf("onSessionRemoved got %+v, want session S1", got)
	}
}

// TestOnSessionRemovedRunsBeforeDeletion locks in §5's ordering guarantee:
// onSessionRemoved must see the session still present in the registry,
// i.e. it runs before the id is deleted from the store.
func TestOnSessionRemovedRunsBeforeDeletion(t *testing.T) {
	var stillPresent bool
	var r *Registry
	onRemoved := func(s *Session) error {
		// If the id were already deleted, GetSession would return nil here.
		stillPresent = r.GetSession(s.SessionID) != nil
		return nil
	}
	r = NewRegistry(func(Event) {}, onRemoved, nil)
	r.RegisterSession(SessionStartEvent{SessionID: "S1", Identity: termkey.Identity{PID: 1}})

	r.UnregisterSession("S1")

	if !stillPresent {
		t.Error("onSessionRemoved ran after the session was deleted from the registry, want before")
	}
	if r.GetSession("S1") != nil {
		t.Error("session should be gone from the registry once UnregisterSession returns")
	}
}

// TestContextUpdateCarriesThresholdRelevantFields is the registry side of
// scenario 4 (threshold notification): updateContext must fan out an
// EventUpdated carrying the fresh context_metrics so a downstream consumer
// (the notification engine) can evaluate thresholds against it.
func TestContextUpdateCarriesThresholdRelevantFields(t *testing.T) {
	rec := &eventRecorder{}
	r := NewRegistry(rec.record, nil, nil)
	r.RegisterSession(SessionStartEvent{SessionID: "S1", Identity: termkey.Identity{PID: 1}})

	r.UpdateContext(ContextUpdateEvent{
		SessionID:      "S1",
		ContextMetrics: &ContextMetrics{UsedPercentage: 75},
	})

	var last *Event
	for _, ev := range rec.all() {
		if ev.Type == EventUpdated && ev.ID == "S1" && ev.State != nil && ev.State.ContextMetrics != nil {
			e := ev
			last = &e
		}
	}
	if last == nil {
		t.Fatal("no EventUpdated carrying context_metrics observed")
	}
	if last.State.ContextMetrics.UsedPercentage != 75 {
		t.Errorf("used_percentage = %v, want 75", last.State.ContextMetrics.UsedPercentage)
	}
}
