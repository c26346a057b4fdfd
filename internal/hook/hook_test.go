package hook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gregory-lime/jacques/internal/session"
)

type fakeRegistry struct {
	started   []session.SessionStartEvent
	activity  []session.ActivityEvent
	context   []session.ContextUpdateEvent
	idled     []string
	awaited   []string
}

func (f *fakeRegistry) RegisterSession(e session.SessionStartEvent) *session.Session {
	f.started = append(f.started, e)
	return &session.Session{SessionID: e.SessionID}
}
func (f *fakeRegistry) UpdateActivity(e session.ActivityEvent) *session.Session {
	f.activity = append(f.activity, e)
	return &session.Session{SessionID: e.SessionID}
}
func (f *fakeRegistry) UpdateContext(e session.ContextUpdateEvent) *session.Session {
	f.context = append(f.context, e)
	return &session.Session{SessionID: e.SessionID}
}
func (f *fakeRegistry) SetSessionIdle(sessionID, permissionMode string, terminalPID int) *session.Session {
	f.idled = append(f.idled, sessionID)
	return &session.Session{SessionID: sessionID}
}
func (f *fakeRegistry) SetSessionAwaiting(sessionID, toolName string, terminalPID int, onTimeout func(*session.Session)) {
	f.awaited = append(f.awaited, sessionID)
}
func (f *fakeRegistry) UpdateSessionMode(sessionID string) *session.Session {
	return nil
}

func post(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionStartRoutes(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	rec := post(t, h, `{"event":"session_start","session_id":"s1","timestamp":1}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(reg.started) != 1 || reg.started[0].SessionID != "s1" {
		t.Errorf("RegisterSession not called correctly: %+v", reg.started)
	}
}

func TestActivityRoutes(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	post(t, h, `{"event":"activity","session_id":"s1","tool_name":"Read"}`)
	if len(reg.activity) != 1 || reg.activity[0].ToolName != "Read" {
		t.Errorf("UpdateActivity not called correctly: %+v", reg.activity)
	}
}

func TestIdleRoutes(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	post(t, h, `{"event":"idle","session_id":"s1"}`)
	if len(reg.idled) != 1 || reg.idled[0] != "s1" {
		t.Errorf("SetSessionIdle not called correctly: %+v", reg.idled)
	}
}

func TestPreToolUseRoutes(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	post(t, h, `{"event":"pre_tool_use","session_id":"s1","tool_name":"Bash"}`)
	if len(reg.awaited) != 1 {
		t.Errorf("SetSessionAwaiting not called: %+v", reg.awaited)
	}
}

func TestUnknownEventReturns400(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	rec := post(t, h, `{"event":"something_else","session_id":"s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInvalidJSONReturns400(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	rec := post(t, h, `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMissingSessionIDReturns400(t *testing.T) {
	reg := &fakeRegistry{}
	h := New(reg, nil)

	rec := post(t, h, `{"event":"activity"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
