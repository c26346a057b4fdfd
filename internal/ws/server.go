package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gregory-lime/jacques/internal/config"
	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gregory-lime/jacques/internal/shell"
	"github.com/gregory-lime/jacques/internal/tiling"
	"github.com/gregory-lime/jacques/internal/worktree"
	"github.com/gorilla/websocket"
)

// TerminalFocuser is the OS-level "bring this terminal window to the
// front" primitive (assumed callable, §1's external collaborators). Key
// is a session's Terminal.Key.
type TerminalFocuser interface {
	Focus(key string) error
}

// SessionLauncher is the OS-level "start an agent session in cwd" primitive
// (assumed callable, §1). It returns the new session's id once the launched
// process has registered itself with the registry (e.g. via the hook
// endpoint), or an error if the launch itself could not be started.
type SessionLauncher interface {
	Launch(cwd string, dangerouslySkipPermissions bool) (sessionID string, err error)
}

// DisplayEnumerator reports the OS's current monitor layout, required to
// compute a tiling grid (§4.7.4).
type DisplayEnumerator interface {
	Displays() ([]tiling.Display, error)
}

// WindowCenter reports a window's current centre point, used to pick which
// display a tile_windows request should target (§4.7.4).
type WindowCenter func(key string) (x, y float64, ok bool)

// Server is the HTTP/WebSocket front door (§4.9, §6). It holds no session
// state of its own: the registry and broadcaster are the sources of truth.
type Server struct {
	config          *config.Config
	registry        *session.Registry
	broadcaster     *Broadcaster
	frontendDir     string
	dev             bool
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
	runner          shell.Runner

	focuser      TerminalFocuser
	launcher     SessionLauncher
	positioner   tiling.Positioner
	displays     DisplayEnumerator
	windowCenter WindowCenter
}

func NewServer(cfg *config.Config, registry *session.Registry, broadcaster *Broadcaster, frontendDir string, dev bool, embeddedHandler http.Handler, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		config:          cfg,
		registry:        registry,
		broadcaster:     broadcaster,
		frontendDir:     frontendDir,
		dev:             dev,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       authToken,
		runner:          shell.NewRunner(),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetTerminalFocuser wires the OS-level focus primitive used by
// focus_terminal requests. Leaving it unset makes those requests reply
// with a "not configured" failure rather than panicking.
func (s *Server) SetTerminalFocuser(f TerminalFocuser) { s.focuser = f }

// SetSessionLauncher wires the OS-level launch primitive used by
// launch_session and create_worktree{launch_session:true}.
func (s *Server) SetSessionLauncher(l SessionLauncher) { s.launcher = l }

// SetTilingHooks wires the OS-level window positioning primitives used by
// tile_windows and maximize_window.
func (s *Server) SetTilingHooks(p tiling.Positioner, d DisplayEnumerator, wc WindowCenter) {
	s.positioner = p
	s.displays = d
	s.windowCenter = wc
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.Handle("/ws", securityHeaders(http.HandlerFunc(s.handleWS)))

	if s.dev {
		log.Printf("jacques: serving frontend from filesystem: %s", s.frontendDir)
		mux.Handle("/", securityHeaders(http.FileServer(http.Dir(s.frontendDir))))
	} else if s.embeddedHandler != nil {
		log.Println("jacques: serving embedded frontend")
		mux.Handle("/", securityHeaders(s.embeddedHandler))
	}
}

// securityHeaders sets the response headers a dashboard's browser context
// needs regardless of route: no sniffing, no framing, a CSP scoped to the
// WebSocket + same-origin assets this UI actually uses.
func securityHeaders(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", strings.Join([]string{
			"default-src 'self'",
			"connect-src 'self' ws: wss:",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"object-src 'none'",
			"base-uri 'self'",
		}, "; "))
		inner.ServeHTTP(w, r)
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("jacques: ws upgrade error: %v", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		log.Printf("jacques: ws client rejected: %v", err)
		return
	}
	log.Printf("jacques: ws client connected: %s", r.RemoteAddr)

	defer func() {
		s.broadcaster.RemoveClient(c)
		log.Printf("jacques: ws client disconnected: %s", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleClientMessage(c, data)
	}
}

// handleClientMessage decodes data twice: once into a minimal envelope to
// dispatch on Type, once directly into the message's own payload struct.
// Inbound fields are flat siblings of "type", not nested under "payload",
// so json.Unmarshal simply ignores the unmatched key on the second pass.
func (s *Server) handleClientMessage(c *client, data []byte) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.sendError(c, fmt.Sprintf("malformed message: %v", err))
		return
	}

	switch envelope.Type {
	case MsgSelectSession:
		var p SelectSessionPayload
		if s.decode(c, data, &p) {
			s.registry.SetFocusedSession(p.SessionID)
		}
	case MsgTriggerAction:
		var p TriggerActionPayload
		if s.decode(c, data, &p) {
			s.handleTriggerAction(p)
		}
	case MsgToggleAutocompact:
		var p ToggleAutocompactPayload
		if s.decode(c, data, &p) {
			s.broadcaster.BroadcastAutocompactToggled(p.Enabled, "")
		}
	case MsgFocusTerminal:
		var p FocusTerminalPayload
		if s.decode(c, data, &p) {
			s.handleFocusTerminal(c, p)
		}
	case MsgTileWindows:
		var p TileWindowsPayload
		if s.decode(c, data, &p) {
			s.handleTileWindows(c, p)
		}
	case MsgMaximizeWindow:
		var p MaximizeWindowPayload
		if s.decode(c, data, &p) {
			s.handleMaximizeWindow(c, p)
		}
	case MsgLaunchSession:
		var p LaunchSessionPayload
		if s.decode(c, data, &p) {
			s.handleLaunchSession(c, p)
		}
	case MsgCreateWorktree:
		var p CreateWorktreePayload
		if s.decode(c, data, &p) {
			s.handleCreateWorktree(c, p)
		}
	case MsgListWorktrees:
		var p ListWorktreesPayload
		if s.decode(c, data, &p) {
			s.handleListWorktrees(c, p)
		}
	case MsgRemoveWorktree:
		var p RemoveWorktreePayload
		if s.decode(c, data, &p) {
			s.handleRemoveWorktree(c, p)
		}
	case MsgRegisterDashboard:
		var p RegisterDashboardPayload
		if s.decode(c, data, &p) {
			s.broadcaster.SetDashboardTerminal(c, p.TerminalKey)
		}
	default:
		s.sendError(c, fmt.Sprintf("unknown message type %q", envelope.Type))
	}
}

func (s *Server) decode(c *client, data []byte, v interface{}) bool {
	if err := json.Unmarshal(data, v); err != nil {
		s.sendError(c, fmt.Sprintf("malformed payload: %v", err))
		return false
	}
	return true
}

func (s *Server) sendError(c *client, message string) {
	s.broadcaster.SendMessage(c, WSMessage{Type: MsgError, Payload: ErrorPayload{Message: message}})
}

// handleTriggerAction acknowledges a smart_compact/new_session/save_snapshot
// request. The action itself is carried out by the agent session via its
// own hook-reported activity; Jacques has no in-process channel into a
// running agent beyond the hook endpoint, so this only logs the intent.
func (s *Server) handleTriggerAction(p TriggerActionPayload) {
	log.Printf("jacques: trigger_action %s for session %s", p.Action, p.SessionID)
}

func (s *Server) handleFocusTerminal(c *client, p FocusTerminalPayload) {
	result := FocusTerminalResultPayload{SessionID: p.SessionID}

	if s.focuser == nil {
		result.Error = "not configured"
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgFocusTerminalResult, Payload: result})
		return
	}

	sess := s.registry.GetSession(p.SessionID)
	if sess == nil {
		result.Error = "session not found"
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgFocusTerminalResult, Payload: result})
		return
	}

	if err := s.focuser.Focus(sess.TerminalKey); err != nil {
		result.Error = err.Error()
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgFocusTerminalResult, Payload: result})
		return
	}

	result.Success = true
	s.broadcaster.SendMessage(c, WSMessage{Type: MsgFocusTerminalResult, Payload: result})
}

func (s *Server) targetDisplay(keys []string) (*tiling.Display, []string) {
	displays, err := s.displays.Displays()
	if err != nil || len(displays) == 0 {
		return nil, []string{"no displays available"}
	}
	target := tiling.SelectTargetDisplay(keys, displays, s.windowCenter)
	if target == nil {
		target = &displays[0]
	}
	return target, nil
}

func (s *Server) handleTileWindows(c *client, p TileWindowsPayload) {
	if s.positioner == nil || s.displays == nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: len(p.SessionIDs), Errors: []string{"not configured"},
		}})
		return
	}

	var keys, missing []string
	for _, id := range p.SessionIDs {
		if sess := s.registry.GetSession(id); sess != nil && sess.TerminalKey != "" {
			keys = append(keys, sess.TerminalKey)
		} else {
			missing = append(missing, id+": no terminal key")
		}
	}

	target, errs := s.targetDisplay(keys)
	if target == nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: len(p.SessionIDs), Errors: append(missing, errs...),
		}})
		return
	}

	result := tiling.TileWindows(context.Background(), keys, target.Bounds, s.positioner)
	s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
		Success: result.Success && len(missing) == 0, Positioned: result.Positioned, Total: len(p.SessionIDs), Errors: append(missing, result.Errors...),
	}})
}

func (s *Server) handleMaximizeWindow(c *client, p MaximizeWindowPayload) {
	if s.positioner == nil || s.displays == nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: 1, Errors: []string{"not configured"},
		}})
		return
	}

	sess := s.registry.GetSession(p.SessionID)
	if sess == nil || sess.TerminalKey == "" {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: 1, Errors: []string{p.SessionID + ": no terminal key"},
		}})
		return
	}

	target, errs := s.targetDisplay([]string{sess.TerminalKey})
	if target == nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: 1, Errors: errs,
		}})
		return
	}

	if err := s.positioner.Position(sess.TerminalKey, target.Bounds); err != nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
			Total: 1, Errors: []string{err.Error()},
		}})
		return
	}

	s.broadcaster.SendMessage(c, WSMessage{Type: MsgTileWindowsResult, Payload: TileWindowsResultPayload{
		Total: 1, Positioned: 1, Success: true,
	}})
}

func (s *Server) handleLaunchSession(c *client, p LaunchSessionPayload) {
	result := LaunchSessionResultPayload{}

	if s.launcher == nil {
		result.Error = "not configured"
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgLaunchSessionResult, Payload: result})
		return
	}

	id, err := s.launcher.Launch(p.Cwd, p.DangerouslySkipPermissions)
	if err != nil {
		result.Error = err.Error()
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgLaunchSessionResult, Payload: result})
		return
	}

	result.Success = true
	result.SessionID = id
	s.broadcaster.SendMessage(c, WSMessage{Type: MsgLaunchSessionResult, Payload: result})
}

func (s *Server) handleCreateWorktree(c *client, p CreateWorktreePayload) {
	result := CreateWorktreeResultPayload{}

	mgr := worktree.New(s.runner, p.RepoRoot)
	wt, err := mgr.Create(context.Background(), p.Name, p.BaseBranch)
	if err != nil {
		result.Error = err.Error()
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgCreateWorktreeResult, Payload: result})
		return
	}

	result.Success = true
	result.WorktreePath = wt.Path
	result.Branch = wt.Branch

	if p.LaunchSession && s.launcher != nil {
		if _, lerr := s.launcher.Launch(wt.Path, p.DangerouslySkipPermissions); lerr == nil {
			result.SessionLaunched = true
		}
	}

	s.broadcaster.SendMessage(c, WSMessage{Type: MsgCreateWorktreeResult, Payload: result})
}

func (s *Server) handleListWorktrees(c *client, p ListWorktreesPayload) {
	mgr := worktree.New(s.runner, p.RepoRoot)
	statuses, err := mgr.ListWithStatus(context.Background())
	if err != nil {
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgListWorktreesResult, Payload: ListWorktreesResultPayload{Error: err.Error()}})
		return
	}

	s.broadcaster.SendMessage(c, WSMessage{Type: MsgListWorktreesResult, Payload: ListWorktreesResultPayload{
		Success: true, Worktrees: statuses,
	}})
}

func (s *Server) handleRemoveWorktree(c *client, p RemoveWorktreePayload) {
	result := RemoveWorktreeResultPayload{}

	mgr := worktree.New(s.runner, p.RepoRoot)
	ctx := context.Background()

	worktrees, err := mgr.List(ctx)
	if err != nil {
		result.Error = err.Error()
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgRemoveWorktreeResult, Payload: result})
		return
	}

	var name string
	for _, wt := range worktrees {
		if wt.Path == p.WorktreePath {
			name = wt.Name
			break
		}
	}
	if name == "" {
		result.Error = "worktree not found"
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgRemoveWorktreeResult, Payload: result})
		return
	}

	branchDeleted, err := mgr.Remove(ctx, name, p.Force, p.DeleteBranch)
	if err != nil {
		result.Error = err.Error()
		s.broadcaster.SendMessage(c, WSMessage{Type: MsgRemoveWorktreeResult, Payload: result})
		return
	}

	result.Success = true
	result.BranchDeleted = branchDeleted
	s.broadcaster.SendMessage(c, WSMessage{Type: MsgRemoveWorktreeResult, Payload: result})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Jacques-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return len(s.allowedOrigins) == 0
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("jacques: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
