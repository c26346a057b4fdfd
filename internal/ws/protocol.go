package ws

import (
	"github.com/gregory-lime/jacques/internal/notify"
	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gregory-lime/jacques/internal/worktree"
)

// MessageType tags every WSMessage's payload shape (§6.1).
type MessageType string

const (
	// Server-pushed.
	MsgInitialState        MessageType = "initial_state"
	MsgSessionUpdate       MessageType = "session_update"
	MsgSessionRemoved      MessageType = "session_removed"
	MsgFocusChanged        MessageType = "focus_changed"
	MsgServerStatus        MessageType = "server_status"
	MsgAutocompactToggled  MessageType = "autocompact_toggled"
	MsgHandoffReady        MessageType = "handoff_ready"
	MsgPlanReady           MessageType = "plan_ready"
	MsgNotificationFired   MessageType = "notification_fired"
	MsgNotificationHistory MessageType = "notification_history"

	// Client requests.
	MsgSelectSession     MessageType = "select_session"
	MsgTriggerAction     MessageType = "trigger_action"
	MsgToggleAutocompact MessageType = "toggle_autocompact"
	MsgFocusTerminal     MessageType = "focus_terminal"
	MsgTileWindows       MessageType = "tile_windows"
	MsgMaximizeWindow    MessageType = "maximize_window"
	MsgLaunchSession     MessageType = "launch_session"
	MsgCreateWorktree    MessageType = "create_worktree"
	MsgListWorktrees     MessageType = "list_worktrees"
	MsgRemoveWorktree    MessageType = "remove_worktree"
	MsgRegisterDashboard MessageType = "register_dashboard"

	// Replies to the requests above.
	MsgFocusTerminalResult  MessageType = "focus_terminal_result"
	MsgLaunchSessionResult  MessageType = "launch_session_result"
	MsgCreateWorktreeResult MessageType = "create_worktree_result"
	MsgListWorktreesResult  MessageType = "list_worktrees_result"
	MsgRemoveWorktreeResult MessageType = "remove_worktree_result"
	MsgTileWindowsResult    MessageType = "tile_windows_result"
	MsgError                MessageType = "error"
)

// WSMessage is the envelope every frame is wrapped in. Seq is assigned by
// the broadcaster for server-pushed messages; it is zero and ignored on
// client requests.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// InitialStatePayload is sent once, immediately after a client connects.
type InitialStatePayload struct {
	Sessions []*session.Session `json:"sessions"`
	Focused  string             `json:"focused"`
	Scanning bool               `json:"scanning"`
}

// SessionUpdatePayload carries one changed session. The broadcaster
// coalesces repeated updates to the same session within its flush window,
// so a client only ever sees the latest snapshot per session per flush.
type SessionUpdatePayload struct {
	Session *session.Session `json:"session"`
}

type SessionRemovedPayload struct {
	SessionID string `json:"sessionId"`
}

// FocusChangedPayload includes a fresh session snapshot when SessionID is
// non-empty, nil otherwise (focus cleared).
type FocusChangedPayload struct {
	SessionID string           `json:"sessionId"`
	Session   *session.Session `json:"session,omitempty"`
}

type ServerStatusPayload struct {
	Status       string `json:"status"`
	SessionCount int    `json:"session_count"`
	Scanning     bool   `json:"scanning,omitempty"`
}

// AutocompactToggledPayload fans out the global autocompact toggle, not a
// per-session one.
type AutocompactToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Warning string `json:"warning,omitempty"`
}

type HandoffReadyPayload struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
}

type PlanReadyPayload struct {
	SessionID string `json:"sessionId"`
	Title     string `json:"title"`
}

type NotificationFiredPayload struct {
	Notification notify.Notification `json:"notification"`
}

type NotificationHistoryPayload struct {
	History []notify.Notification `json:"history"`
}

// ErrorPayload replies to a malformed or failed client request.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Client requests.

type SelectSessionPayload struct {
	SessionID string `json:"sessionId"`
}

// TriggerActionPayload's Action is one of smart_compact, new_session,
// save_snapshot.
type TriggerActionPayload struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

type ToggleAutocompactPayload struct {
	Enabled bool `json:"enabled"`
}

type FocusTerminalPayload struct {
	SessionID string `json:"sessionId"`
}

type FocusTerminalResultPayload struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type TileWindowsPayload struct {
	SessionIDs []string `json:"session_ids"`
	Layout     string   `json:"layout,omitempty"`
}

type TileWindowsResultPayload struct {
	Success    bool     `json:"success"`
	Positioned int      `json:"positioned"`
	Total      int      `json:"total"`
	Errors     []string `json:"errors,omitempty"`
}

type MaximizeWindowPayload struct {
	SessionID string `json:"session_id"`
}

type LaunchSessionPayload struct {
	Cwd                        string `json:"cwd"`
	DangerouslySkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
}

type LaunchSessionResultPayload struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CreateWorktreePayload struct {
	RepoRoot                   string `json:"repo_root"`
	Name                       string `json:"name"`
	BaseBranch                 string `json:"base_branch,omitempty"`
	LaunchSession              bool   `json:"launch_session,omitempty"`
	DangerouslySkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
}

// CreateWorktreeResultPayload is flattened (not a nested worktree.Worktree)
// to match the wire example in §6.1 exactly.
type CreateWorktreeResultPayload struct {
	Success         bool   `json:"success"`
	WorktreePath    string `json:"worktree_path,omitempty"`
	Branch          string `json:"branch,omitempty"`
	SessionLaunched bool   `json:"session_launched"`
	Error           string `json:"error,omitempty"`
}

type ListWorktreesPayload struct {
	RepoRoot string `json:"repo_root"`
}

type ListWorktreesResultPayload struct {
	Success   bool              `json:"success"`
	Worktrees []worktree.Status `json:"worktrees,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type RemoveWorktreePayload struct {
	RepoRoot     string `json:"repo_root"`
	WorktreePath string `json:"worktree_path"`
	Force        bool   `json:"force,omitempty"`
	DeleteBranch bool   `json:"delete_branch,omitempty"`
}

type RemoveWorktreeResultPayload struct {
	Success       bool   `json:"success"`
	BranchDeleted bool   `json:"branch_deleted"`
	Error         string `json:"error,omitempty"`
}

// RegisterDashboardPayload identifies the terminal hosting a dashboard
// client. The server records the key on the client; no other request
// consults it.
type RegisterDashboardPayload struct {
	TerminalKey string `json:"terminal_key"`
}
