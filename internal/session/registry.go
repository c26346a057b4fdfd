// Package session implements the canonical session data model and registry
// (§3, §4.3) plus the cleanup service (§4.4).
package session

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gregory-lime/jacques/internal/termkey"
)

// ModeDetector recomputes a session's mode by scanning its transcript
// (§4.5). Declared here (rather than imported from internal/modedetect) to
// avoid a dependency cycle — modedetect needs no knowledge of the registry.
type ModeDetector interface {
	DetectMode(transcriptPath string) (Mode, error)
}

const pendingBypassTTL = 60 * time.Second

// Registry is the canonical in-memory session map (§4.3). Every mutating
// method serializes through mu — the "registry serialisation boundary"
// §5 requires observers to see a consistent snapshot across. The read
// accessors (GetSession, GetAllSessions, FindSessionByTerminalKey,
// ActiveCount) rely on the store's own lock and do not take mu.
type Registry struct {
	store *store

	mu               sync.Mutex
	focusedSessionID string
	pendingBypass    map[string]time.Time // normalized cwd -> expiry
	awaitingTimers   map[string]*time.Timer

	onEvent          func(Event)
	onSessionRemoved func(*Session) error
	modeDetector     ModeDetector

	recentlyEnded *recentlyEnded
}

// NewRegistry constructs an empty registry. onEvent and onSessionRemoved may
// be nil; detector may be nil (UpdateSessionMode becomes a no-op).
func NewRegistry(onEvent func(Event), onSessionRemoved func(*Session) error, detector ModeDetector) *Registry {
	return &Registry{
		store:            newStore(),
		pendingBypass:    make(map[string]time.Time),
		awaitingTimers:   make(map[string]*time.Timer),
		onEvent:          onEvent,
		onSessionRemoved: onSessionRemoved,
		modeDetector:     detector,
		recentlyEnded:    newRecentlyEnded(30 * time.Second),
	}
}

func (r *Registry) emit(ev Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

// DetectedSession is produced by the Process Scanner (§4.2).
type DetectedSession struct {
	SessionID         string
	PID               int
	TTY               string
	Cwd               string
	Project           string
	TranscriptPath    string
	LastActivity      int64
	Title             string
	GitBranch         string
	GitWorktree       string
	GitRepoRoot       string
	ContextMetrics    *ContextMetrics
	Mode              Mode
	TerminalType      string
	TerminalSessionID string
	IsBypass          bool
}

// SessionStartEvent is the hook payload for `session_start` (§6.2).
type SessionStartEvent struct {
	SessionID      string
	Timestamp      int64
	Identity       termkey.Identity
	TerminalPID    int
	TranscriptPath string
	SessionTitle   string
	Autocompact    *Autocompact
	GitBranch      string
	GitWorktree    string
	GitRepoRoot    string
	Cwd            string
	ProjectDir     string
	PermissionMode string
}

// ActivityEvent is the hook payload for `activity` (§6.2).
type ActivityEvent struct {
	SessionID      string
	Timestamp      int64
	ToolName       string
	TerminalPID    int
	PermissionMode string
	ContextMetrics *ContextMetrics
	SessionTitle   string
}

// ContextUpdateEvent is the hook payload for `context_update` (§6.2).
type ContextUpdateEvent struct {
	SessionID      string
	Timestamp      int64
	Identity       termkey.Identity
	TerminalPID    int
	Cwd            string
	ProjectDir     string
	ContextMetrics *ContextMetrics
	Autocompact    *Autocompact
	Model          *Model
	SessionTitle   string
	TranscriptPath string
	GitBranch      string
	GitWorktree    string
	GitRepoRoot    string
}

// filterTitle drops internal command-echo noise (§3 Display).
func filterTitle(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return ""
	}
	if strings.HasPrefix(t, "<local-command") || strings.HasPrefix(t, "<command-") {
		return ""
	}
	return t
}

func leafName(path string) string {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return ""
	}
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func applyAutocompactInvariant(ac *Autocompact) {
	if ac == nil {
		return
	}
	if !ac.Enabled {
		ac.BugThreshold = DefaultBugThreshold
	} else {
		ac.BugThreshold = 0
	}
}

// bestDiscoveredKey synthesises a terminal_key for a scanner-discovered
// session: terminal_session_id > tty+pid > pid (§4.3.1).
func bestDiscoveredKey(d DetectedSession) string {
	switch {
	case d.TerminalSessionID != "":
		return fmt.Sprintf("%s:TERM:%s", termkey.DiscoveredTag, d.TerminalSessionID)
	case d.TTY != "" && d.PID > 0:
		return fmt.Sprintf("%s:TTY:%s:%d", termkey.DiscoveredTag, d.TTY, d.PID)
	case d.PID > 0:
		return fmt.Sprintf("%s:%s:%d", termkey.DiscoveredTag, termkey.PID, d.PID)
	default:
		return "UNKNOWN"
	}
}

func sessionPID(s *Session) *int {
	if s.Terminal != nil && s.Terminal.PID > 0 {
		pid := s.Terminal.PID
		return &pid
	}
	return termkey.ExtractPID(s.TerminalKey)
}

// RegisterDiscovered implements §4.3.1 registerDiscovered.
func (r *Registry) RegisterDiscovered(d DetectedSession) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.store.Get(d.SessionID); ok {
		return existing
	}

	key := bestDiscoveredKey(d)
	project := d.Project
	if project == "" {
		project = leafName(d.Cwd)
	}

	sess := &Session{
		SessionID:    d.SessionID,
		Source:       SourceClaudeCode,
		RegisteredAt: NowMillis(),
		Cwd:          d.Cwd,
		Project:      project,
		Status:       StatusActive,
		LastActivity: d.LastActivity,
		TerminalKey:  key,
		Mode:         d.Mode,
		IsBypass:     d.IsBypass,
	}
	if t := filterTitle(d.Title); t != "" {
		sess.SessionTitle = strPtr(t)
	}
	if d.TranscriptPath != "" {
		sess.TranscriptPath = strPtr(d.TranscriptPath)
	}
	if d.GitBranch != "" {
		sess.GitBranch = strPtr(d.GitBranch)
	}
	if d.GitWorktree != "" {
		sess.GitWorktree = strPtr(d.GitWorktree)
	}
	if d.GitRepoRoot != "" {
		sess.GitRepoRoot = strPtr(d.GitRepoRoot)
	}
	sess.ContextMetrics = d.ContextMetrics
	if d.PID > 0 {
		sess.Terminal = &Terminal{PID: d.PID, TTY: d.TTY}
	}

	r.consumePendingBypassLocked(sess)

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})

	if r.focusedSessionID == "" {
		r.setFocusedLocked(sess.SessionID)
	}

	out, _ := r.store.Get(sess.SessionID)
	return out
}

// removeStaleForTerminalLocked implements §4.3.3: any session (other than
// exceptID) whose terminal_key matches newKey, or whose pid equals newPID,
// is evicted.
func (r *Registry) removeStaleForTerminalLocked(newKey string, newPID int, exceptID string) {
	var stale []string
	for _, sess := range r.store.GetAll() {
		if sess.SessionID == exceptID {
			continue
		}
		isStale := newKey != "" && termkey.Match(sess.TerminalKey, newKey)
		if !isStale && newPID > 0 {
			if pid := sessionPID(sess); pid != nil && *pid == newPID {
				isStale = true
			}
		}
		if isStale {
			stale = append(stale, sess.SessionID)
		}
	}
	for _, id := range stale {
		r.unregisterLocked(id)
	}
}

// RegisterSession implements §4.3.1 registerSession.
func (r *Registry) RegisterSession(e SessionStartEvent) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := termkey.Build(e.Identity)
	if !ok && e.TerminalPID > 0 {
		key = fmt.Sprintf("%s:%d", termkey.PID, e.TerminalPID)
	}

	r.removeStaleForTerminalLocked(key, e.TerminalPID, e.SessionID)

	sess, hadExisting := r.store.Get(e.SessionID)
	if !hadExisting {
		project := leafName(e.ProjectDir)
		if project == "" {
			project = leafName(e.Cwd)
		}
		sess = &Session{
			SessionID:    e.SessionID,
			Source:       SourceClaudeCode,
			RegisteredAt: NowMillis(),
			Cwd:          e.Cwd,
			Project:      project,
			Status:       StatusActive,
		}
	}

	if key != "" {
		sess.TerminalKey = key
	}
	if e.TerminalPID > 0 {
		if sess.Terminal == nil {
			sess.Terminal = &Terminal{}
		}
		sess.Terminal.PID = e.TerminalPID
	}
	if e.TranscriptPath != "" {
		sess.TranscriptPath = strPtr(e.TranscriptPath)
	}
	if e.Autocompact != nil {
		sess.Autocompact = e.Autocompact
		applyAutocompactInvariant(sess.Autocompact)
	}
	if e.GitBranch != "" {
		sess.GitBranch = strPtr(e.GitBranch)
	}
	if e.GitWorktree != "" {
		sess.GitWorktree = strPtr(e.GitWorktree)
	}
	if e.GitRepoRoot != "" {
		sess.GitRepoRoot = strPtr(e.GitRepoRoot)
	}
	if t := filterTitle(e.SessionTitle); t != "" {
		sess.SessionTitle = strPtr(t)
	}
	sess.LastActivity = e.Timestamp

	r.consumePendingBypassLocked(sess)

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})
	r.setFocusedLocked(sess.SessionID)

	out, _ := r.store.Get(sess.SessionID)
	return out
}

func applyPermissionMode(sess *Session, permissionMode string) {
	switch permissionMode {
	case "":
		return
	case "bypassPermissions":
		sess.IsBypass = true
		return
	}
	if sess.IsBypass {
		if permissionMode == "plan" {
			sess.Mode = ModePlan
		}
		return
	}
	switch permissionMode {
	case "plan":
		sess.Mode = ModePlan
	case "acceptEdits":
		sess.Mode = ModeAcceptEdits
	default:
		sess.Mode = ModeDefault
	}
}

// UpdateActivity implements §4.3.1 updateActivity.
func (r *Registry) UpdateActivity(e ActivityEvent) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.Get(e.SessionID)
	if !ok {
		return nil
	}

	r.cancelAwaitingTimerLocked(e.SessionID)

	sess.Status = StatusWorking
	if e.ToolName != "" {
		sess.LastToolName = strPtr(e.ToolName)
	}
	sess.LastActivity = e.Timestamp
	if e.TerminalPID > 0 {
		if sess.Terminal == nil {
			sess.Terminal = &Terminal{}
		}
		sess.Terminal.PID = e.TerminalPID
	}
	applyPermissionMode(sess, e.PermissionMode)
	if t := filterTitle(e.SessionTitle); t != "" {
		sess.SessionTitle = strPtr(t)
	}
	if e.ContextMetrics != nil {
		sess.ContextMetrics = e.ContextMetrics
	}

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})

	out, _ := r.store.Get(sess.SessionID)
	return out
}

// UpdateContext implements §4.3.1 updateContext.
func (r *Registry) UpdateContext(e ContextUpdateEvent) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, existed := r.store.Get(e.SessionID)
	if !existed {
		if r.recentlyEnded.wasRecentlyEnded(e.SessionID) {
			return nil
		}

		project := leafName(e.ProjectDir)
		if project == "" {
			project = leafName(e.Cwd)
		}
		sess = &Session{
			SessionID:    e.SessionID,
			Source:       SourceClaudeCode,
			RegisteredAt: NowMillis(),
			Cwd:          e.Cwd,
			Project:      project,
			Status:       StatusActive,
			TerminalKey:  fmt.Sprintf("AUTO:%s", e.SessionID),
			SessionTitle: strPtr(fmt.Sprintf("Session in %s", project)),
		}

		r.store.UpdateAndNotify(sess, func() {
			r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
		})
		r.setFocusedLocked(sess.SessionID)

		newKey, _ := termkey.Build(e.Identity)
		if newKey == "" && e.TerminalPID > 0 {
			newKey = fmt.Sprintf("%s:%d", termkey.PID, e.TerminalPID)
		}
		r.removeStaleForTerminalLocked(newKey, e.TerminalPID, sess.SessionID)
	}

	if sess.Status == StatusActive {
		sess.Status = StatusWorking
	}
	sess.LastActivity = e.Timestamp

	cm := e.ContextMetrics
	if cm == nil {
		cm = &ContextMetrics{UsedPercentage: 0, RemainingPercentage: 100, IsEstimate: false}
	}
	sess.ContextMetrics = cm

	if e.Autocompact != nil {
		sess.Autocompact = e.Autocompact
		applyAutocompactInvariant(sess.Autocompact)
	}
	if e.Model != nil {
		sess.Model = e.Model
	}
	if e.Cwd != "" || e.ProjectDir != "" {
		sess.Workspace = &Workspace{CurrentDir: e.Cwd, ProjectDir: e.ProjectDir}
	}

	parsed := termkey.Parse(sess.TerminalKey)
	isAutoOrDiscovered := strings.HasPrefix(sess.TerminalKey, "AUTO:") || parsed.IsDiscovered
	if isAutoOrDiscovered {
		if newKey, ok := termkey.Build(e.Identity); ok {
			sess.TerminalKey = newKey
		}
	}

	if t := filterTitle(e.SessionTitle); t != "" {
		sess.SessionTitle = strPtr(t)
	}
	if sess.TranscriptPath == nil && e.TranscriptPath != "" {
		sess.TranscriptPath = strPtr(e.TranscriptPath)
	}
	if e.GitBranch != "" {
		sess.GitBranch = strPtr(e.GitBranch)
	}
	if e.GitWorktree != "" {
		sess.GitWorktree = strPtr(e.GitWorktree)
	}
	if e.GitRepoRoot != "" {
		sess.GitRepoRoot = strPtr(e.GitRepoRoot)
	}

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})

	out, _ := r.store.Get(sess.SessionID)
	return out
}

// UpdateSessionMode implements §4.3.1 updateSessionMode. The transcript
// scan happens outside the registry lock per §5's suspension-point rule;
// only the result application is serialized.
func (r *Registry) UpdateSessionMode(sessionID string) *Session {
	if r.modeDetector == nil {
		return nil
	}

	sess, ok := r.store.Get(sessionID)
	if !ok || sess.TranscriptPath == nil {
		return nil
	}

	mode, err := r.modeDetector.DetectMode(*sess.TranscriptPath)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok = r.store.Get(sessionID)
	if !ok {
		return nil
	}
	sess.Mode = mode

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})

	out, _ := r.store.Get(sessionID)
	return out
}

// SetSessionIdle implements §4.3.1 setSessionIdle.
func (r *Registry) SetSessionIdle(sessionID string, permissionMode string, terminalPID int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.Get(sessionID)
	if !ok {
		return nil
	}

	r.cancelAwaitingTimerLocked(sessionID)
	sess.Status = StatusIdle
	applyPermissionMode(sess, permissionMode)
	if terminalPID > 0 {
		if sess.Terminal == nil {
			sess.Terminal = &Terminal{}
		}
		sess.Terminal.PID = terminalPID
	}

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})

	out, _ := r.store.Get(sessionID)
	return out
}

// SetSessionAwaiting implements §4.3.1 setSessionAwaiting: a 1-second
// debounce timer that fires onTimeout unless cancelled by a later activity
// or idle event on the same session.
func (r *Registry) SetSessionAwaiting(sessionID, toolName string, terminalPID int, onTimeout func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.Get(sessionID); !ok {
		return
	}

	r.cancelAwaitingTimerLocked(sessionID)
	if terminalPID > 0 {
		if sess, ok := r.store.Get(sessionID); ok {
			if sess.Terminal == nil {
				sess.Terminal = &Terminal{}
			}
			sess.Terminal.PID = terminalPID
			r.store.UpdateAndNotify(sess, nil)
		}
	}

	timer := time.AfterFunc(time.Second, func() {
		r.fireAwaiting(sessionID, toolName, onTimeout)
	})
	r.awaitingTimers[sessionID] = timer
}

func (r *Registry) fireAwaiting(sessionID, toolName string, onTimeout func(*Session)) {
	r.mu.Lock()

	if _, stillPending := r.awaitingTimers[sessionID]; !stillPending {
		r.mu.Unlock()
		return
	}
	delete(r.awaitingTimers, sessionID)

	sess, ok := r.store.Get(sessionID)
	if !ok || (sess.Status != StatusWorking && sess.Status != StatusActive) {
		r.mu.Unlock()
		return
	}

	sess.Status = StatusAwaiting
	sess.LastToolName = strPtr(toolName)

	r.store.UpdateAndNotify(sess, func() {
		r.emit(Event{Type: EventUpdated, State: sess.Clone(), ID: sess.SessionID})
	})
	out, _ := r.store.Get(sessionID)
	r.mu.Unlock()

	if onTimeout != nil {
		onTimeout(out)
	}
}

func (r *Registry) cancelAwaitingTimerLocked(sessionID string) {
	if timer, ok := r.awaitingTimers[sessionID]; ok {
		timer.Stop()
		delete(r.awaitingTimers, sessionID)
	}
}

// UnregisterSession implements §4.3.1 unregisterSession.
func (r *Registry) UnregisterSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregisterLocked(sessionID)
}

// unregisterLocked removes sessionID. The onSessionRemoved callback runs
// exactly once per removal, before the id is deleted from the store, so an
// implementation that reads the registry back out during the callback (for
// last-chance persistence, say) still finds the session there.
func (r *Registry) unregisterLocked(sessionID string) {
	r.cancelAwaitingTimerLocked(sessionID)

	sess, ok := r.store.Get(sessionID)
	if !ok {
		return
	}

	if r.onSessionRemoved != nil {
		if err := r.onSessionRemoved(sess); err != nil {
			log.Printf("jacques: onSessionRemoved callback error for session %s: %v", sessionID, err)
		}
	}

	removed := r.store.RemoveAndNotify(sessionID, func() {
		r.emit(Event{Type: EventRemoved, ID: sessionID})
	})
	if removed == nil {
		return
	}

	r.recentlyEnded.mark(sessionID)

	if r.focusedSessionID == sessionID {
		r.refocusMostRecentLocked()
	}
}

func (r *Registry) refocusMostRecentLocked() {
	all := r.store.GetAll()
	if len(all) == 0 {
		r.setFocusedLocked("")
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastActivity > all[j].LastActivity })
	r.setFocusedLocked(all[0].SessionID)
}

func (r *Registry) setFocusedLocked(sessionID string) {
	if r.focusedSessionID == sessionID {
		return
	}
	r.focusedSessionID = sessionID
	var state *Session
	if sessionID != "" {
		state, _ = r.store.Get(sessionID)
	}
	r.emit(Event{Type: EventFocused, State: state, ID: sessionID})
}

// SetFocusedSession implements §4.3.1 setFocusedSession.
func (r *Registry) SetFocusedSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setFocusedLocked(sessionID)
}

// GetFocusedSessionID implements §4.3.1 getFocusedSessionId.
func (r *Registry) GetFocusedSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.focusedSessionID
}

// GetSession implements §4.3.1 getSession.
func (r *Registry) GetSession(sessionID string) *Session {
	sess, _ := r.store.Get(sessionID)
	return sess
}

// GetAllSessions implements §4.3.1 getAllSessions: sorted by last_activity
// descending.
func (r *Registry) GetAllSessions() []*Session {
	all := r.store.GetAll()
	sort.Slice(all, func(i, j int) bool { return all[i].LastActivity > all[j].LastActivity })
	return all
}

// FindSessionByTerminalKey implements §4.3.1 findSessionByTerminalKey.
func (r *Registry) FindSessionByTerminalKey(key string) *Session {
	for _, sess := range r.store.GetAll() {
		if termkey.Match(sess.TerminalKey, key) {
			return sess
		}
	}
	return nil
}

func normalizeCwd(cwd string) string {
	return strings.TrimRight(cwd, "/")
}

// MarkPendingBypass implements §4.3.1 markPendingBypass / §4.3.5's
// pending-bypass table.
func (r *Registry) MarkPendingBypass(cwd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingBypass[normalizeCwd(cwd)] = time.Now().Add(pendingBypassTTL)
}

func (r *Registry) consumePendingBypassLocked(sess *Session) {
	key := normalizeCwd(sess.Cwd)
	expiry, ok := r.pendingBypass[key]
	if !ok {
		return
	}
	delete(r.pendingBypass, key)
	if time.Now().Before(expiry) {
		sess.IsBypass = true
	}
}

// Clear implements §4.3.1 clear.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.awaitingTimers {
		timer.Stop()
		delete(r.awaitingTimers, id)
	}
	r.store = newStore()
	r.focusedSessionID = ""
	r.pendingBypass = make(map[string]time.Time)
}

// ActiveCount returns the number of sessions currently tracked.
func (r *Registry) ActiveCount() int {
	return r.store.ActiveCount()
}
