package focuswatch

import (
	"testing"

	"github.com/gregory-lime/jacques/internal/session"
)

func TestParseParentPID(t *testing.T) {
	stat := "1234 (claude code) S 999 1234 1234 0 -1 4194304 100 0 0 0 1 0 0 0 20 0 1 0"
	if got := parseParentPID(stat); got != 999 {
		t.Errorf("parseParentPID = %d, want 999", got)
	}
}

func TestParseParentPIDMalformed(t *testing.T) {
	if got := parseParentPID("garbage"); got != 0 {
		t.Errorf("parseParentPID(garbage) = %d, want 0", got)
	}
}

type fakeRegistry struct {
	sessions []*session.Session
	focused  string
}

func (f *fakeRegistry) GetAllSessions() []*session.Session { return f.sessions }
func (f *fakeRegistry) FindSessionByTerminalKey(key string) *session.Session {
	for _, s := range f.sessions {
		if s.TerminalKey == key {
			return s
		}
	}
	return nil
}
func (f *fakeRegistry) SetFocusedSession(id string)  { f.focused = id }
func (f *fakeRegistry) GetFocusedSessionID() string { return f.focused }

func TestFindSessionForPIDMatchesTerminalPID(t *testing.T) {
	reg := &fakeRegistry{sessions: []*session.Session{
		{SessionID: "s1", Terminal: &session.Terminal{PID: 555}},
	}}
	w := New(DefaultConfig(), reg)

	sess := w.findSessionForPID(555)
	if sess == nil || sess.SessionID != "s1" {
		t.Fatalf("findSessionForPID = %+v, want s1", sess)
	}
}

func TestFindSessionForPIDNoMatch(t *testing.T) {
	reg := &fakeRegistry{}
	w := New(DefaultConfig(), reg)
	if sess := w.findSessionForPID(1); sess != nil {
		t.Errorf("expected no match, got %+v", sess)
	}
}
