package session

import "time"

// Source identifies which agent platform produced a session.
type Source string

const (
	SourceClaudeCode Source = "claude_code"
	SourceCursor     Source = "cursor"
	SourceOther      Source = "other"
)

// Status is the session's current activity state (§4.3.4).
type Status string

const (
	StatusActive   Status = "active"
	StatusWorking  Status = "working"
	StatusAwaiting Status = "awaiting"
	StatusIdle     Status = "idle"
)

// Mode is the agent's permission posture, orthogonal to IsBypass.
type Mode string

const (
	ModeNone        Mode = ""
	ModeDefault     Mode = "default"
	ModePlan        Mode = "plan"
	ModePlanning    Mode = "planning"
	ModeAcceptEdits Mode = "acceptEdits"
)

// DefaultBugThreshold is the platform quirk value used when autocompact is
// disabled (§3 invariants).
const DefaultBugThreshold = 78

// Model describes the LLM backing a session.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Workspace carries the agent-reported working directories.
type Workspace struct {
	CurrentDir string `json:"current_dir"`
	ProjectDir string `json:"project_dir"`
}

// Terminal carries the structured emulator-identity fields used to build a
// terminal_key (see internal/termkey).
type Terminal struct {
	Emulator       string `json:"emulator,omitempty"`
	ITermSessionID string `json:"iterm_session_id,omitempty"`
	KittyWindowID  string `json:"kitty_window_id,omitempty"`
	WezTermPaneID  string `json:"wezterm_pane_id,omitempty"`
	WTSessionID    string `json:"wt_session_id,omitempty"`
	TermSessionID  string `json:"term_session_id,omitempty"`
	TTY            string `json:"tty,omitempty"`
	PID            int    `json:"pid,omitempty"`
}

// ContextMetrics reflects the agent's reported context-window usage.
type ContextMetrics struct {
	UsedPercentage      float64 `json:"used_percentage"`
	RemainingPercentage float64 `json:"remaining_percentage"`
	ContextWindowSize   int     `json:"context_window_size"`
	TotalInputTokens    int     `json:"total_input_tokens"`
	TotalOutputTokens   int     `json:"total_output_tokens"`
	IsEstimate          bool    `json:"is_estimate"`
}

// Autocompact tracks the platform's automatic context-compaction settings.
type Autocompact struct {
	Enabled      bool `json:"enabled"`
	Threshold    int  `json:"threshold"`
	BugThreshold int  `json:"bug_threshold"`
}

// Session is the registry's primary entity (§3).
type Session struct {
	SessionID    string `json:"session_id"`
	Source       Source `json:"source"`
	RegisteredAt int64  `json:"registered_at"`

	SessionTitle *string `json:"session_title"`

	Cwd            string  `json:"cwd"`
	Project        string  `json:"project"`
	TranscriptPath *string `json:"transcript_path"`

	Model     *Model     `json:"model"`
	Workspace *Workspace `json:"workspace"`

	Terminal    *Terminal `json:"terminal"`
	TerminalKey string    `json:"terminal_key"`

	Status Status `json:"status"`

	LastActivity int64   `json:"last_activity"`
	LastToolName *string `json:"last_tool_name"`

	ContextMetrics *ContextMetrics `json:"context_metrics"`
	Autocompact    *Autocompact    `json:"autocompact"`

	GitBranch   *string `json:"git_branch"`
	GitWorktree *string `json:"git_worktree"`
	GitRepoRoot *string `json:"git_repo_root"`
	GitAhead    *int    `json:"git_ahead"`
	GitBehind   *int    `json:"git_behind"`
	GitDirty    *bool   `json:"git_dirty"`

	Mode     Mode `json:"mode"`
	IsBypass bool `json:"is_bypass"`
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

// Clone returns a deep copy so callers can read a Session without racing the
// registry's mutator goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.SessionTitle != nil {
		c.SessionTitle = strPtr(*s.SessionTitle)
	}
	if s.TranscriptPath != nil {
		c.TranscriptPath = strPtr(*s.TranscriptPath)
	}
	if s.Model != nil {
		m := *s.Model
		c.Model = &m
	}
	if s.Workspace != nil {
		w := *s.Workspace
		c.Workspace = &w
	}
	if s.Terminal != nil {
		t := *s.Terminal
		c.Terminal = &t
	}
	if s.LastToolName != nil {
		c.LastToolName = strPtr(*s.LastToolName)
	}
	if s.ContextMetrics != nil {
		cm := *s.ContextMetrics
		c.ContextMetrics = &cm
	}
	if s.Autocompact != nil {
		ac := *s.Autocompact
		c.Autocompact = &ac
	}
	if s.GitBranch != nil {
		c.GitBranch = strPtr(*s.GitBranch)
	}
	if s.GitWorktree != nil {
		c.GitWorktree = strPtr(*s.GitWorktree)
	}
	if s.GitRepoRoot != nil {
		c.GitRepoRoot = strPtr(*s.GitRepoRoot)
	}
	if s.GitAhead != nil {
		c.GitAhead = intPtr(*s.GitAhead)
	}
	if s.GitBehind != nil {
		c.GitBehind = intPtr(*s.GitBehind)
	}
	if s.GitDirty != nil {
		c.GitDirty = boolPtr(*s.GitDirty)
	}
	return &c
}

// NowMillis returns the current time as milliseconds since epoch, the unit
// every timestamp field on Session uses.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
