// Package hook implements the hook HTTP ingestion endpoint (§6.2): agent
// hooks POST one JSON event per call, and each event is routed to the
// matching Session Registry operation.
package hook

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gregory-lime/jacques/internal/termkey"
)

// Registry is the subset of *session.Registry the handler depends on.
type Registry interface {
	RegisterSession(e session.SessionStartEvent) *session.Session
	UpdateActivity(e session.ActivityEvent) *session.Session
	UpdateContext(e session.ContextUpdateEvent) *session.Session
	SetSessionIdle(sessionID, permissionMode string, terminalPID int) *session.Session
	SetSessionAwaiting(sessionID, toolName string, terminalPID int, onTimeout func(*session.Session))
	UpdateSessionMode(sessionID string) *session.Session
}

// rawEvent is the wire shape every hook event is first decoded into; the
// fields are a superset across session_start/activity/idle/pre_tool_use/
// context_update (§6.2).
type rawEvent struct {
	Event          string            `json:"event"`
	SessionID      string            `json:"session_id"`
	Timestamp      int64             `json:"timestamp"`
	ToolName       string            `json:"tool_name"`
	TerminalPID    int               `json:"terminal_pid"`
	PermissionMode string            `json:"permission_mode"`
	SessionTitle   string            `json:"session_title"`
	TranscriptPath string            `json:"transcript_path"`
	Cwd            string            `json:"cwd"`
	ProjectDir     string            `json:"project_dir"`
	GitBranch      string            `json:"git_branch"`
	GitWorktree    string            `json:"git_worktree"`
	GitRepoRoot    string                   `json:"git_repo_root"`
	ContextMetrics *session.ContextMetrics `json:"context_metrics"`
	Autocompact    *session.Autocompact    `json:"autocompact"`
	Model          *session.Model          `json:"model"`
	Identity       identityPayload         `json:"terminal_identity"`
}

type identityPayload struct {
	ITermSessionID string `json:"iterm_session_id"`
	KittyWindowID  string `json:"kitty_window_id"`
	WezTermPaneID  string `json:"wezterm_pane_id"`
	WTSessionID    string `json:"wt_session_id"`
	TermSessionID  string `json:"term_session_id"`
	TTY            string `json:"tty"`
	PID            int    `json:"pid"`
}

func (p identityPayload) toIdentity() termkey.Identity {
	return termkey.Identity{
		ITermSessionID: p.ITermSessionID,
		KittyWindowID:  p.KittyWindowID,
		WezTermPaneID:  p.WezTermPaneID,
		WTSessionID:    p.WTSessionID,
		TermSessionID:  p.TermSessionID,
		TTY:            p.TTY,
		PID:            p.PID,
	}
}

// Handler serves POST /hook.
type Handler struct {
	registry Registry
	onAwait  func(*session.Session)
}

// New constructs a Handler. onAwait, if non-nil, is invoked when a
// pre_tool_use awaiting-debounce fires without a cancelling activity event
// (typically used to broadcast the resulting state change).
func New(registry Registry, onAwait func(*session.Session)) *Handler {
	return &Handler{registry: registry, onAwait: onAwait}
}

// ServeHTTP implements the §6.2 contract: non-JSON or unknown event type
// returns 400; a well-formed event for an unknown session silently no-ops
// for activity/idle/pre_tool_use (the registry methods already return nil
// in that case).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev rawEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if ev.SessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	switch ev.Event {
	case "session_start":
		h.registry.RegisterSession(session.SessionStartEvent{
			SessionID:      ev.SessionID,
			Timestamp:      ev.Timestamp,
			Identity:       ev.Identity.toIdentity(),
			TerminalPID:    ev.TerminalPID,
			TranscriptPath: ev.TranscriptPath,
			SessionTitle:   ev.SessionTitle,
			Autocompact:    ev.Autocompact,
			GitBranch:      ev.GitBranch,
			GitWorktree:    ev.GitWorktree,
			GitRepoRoot:    ev.GitRepoRoot,
			Cwd:            ev.Cwd,
			ProjectDir:     ev.ProjectDir,
			PermissionMode: ev.PermissionMode,
		})
	case "activity":
		h.registry.UpdateActivity(session.ActivityEvent{
			SessionID:      ev.SessionID,
			Timestamp:      ev.Timestamp,
			ToolName:       ev.ToolName,
			TerminalPID:    ev.TerminalPID,
			PermissionMode: ev.PermissionMode,
			ContextMetrics: ev.ContextMetrics,
			SessionTitle:   ev.SessionTitle,
		})
	case "context_update":
		h.registry.UpdateContext(session.ContextUpdateEvent{
			SessionID:      ev.SessionID,
			Timestamp:      ev.Timestamp,
			Identity:       ev.Identity.toIdentity(),
			TerminalPID:    ev.TerminalPID,
			Cwd:            ev.Cwd,
			ProjectDir:     ev.ProjectDir,
			ContextMetrics: ev.ContextMetrics,
			Autocompact:    ev.Autocompact,
			Model:          ev.Model,
			SessionTitle:   ev.SessionTitle,
			TranscriptPath: ev.TranscriptPath,
			GitBranch:      ev.GitBranch,
			GitWorktree:    ev.GitWorktree,
			GitRepoRoot:    ev.GitRepoRoot,
		})
	case "idle":
		h.registry.SetSessionIdle(ev.SessionID, ev.PermissionMode, ev.TerminalPID)
	case "pre_tool_use":
		h.registry.SetSessionAwaiting(ev.SessionID, ev.ToolName, ev.TerminalPID, h.onAwait)
		if sess := h.registry.UpdateSessionMode(ev.SessionID); sess != nil {
			log.Printf("hook: mode for %s recomputed as %s", ev.SessionID, sess.Mode)
		}
	default:
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
