package ws

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gregory-lime/jacques/internal/notify"
	"github.com/gregory-lime/jacques/internal/session"
	"github.com/gorilla/websocket"
)

// ErrTooManyConnections is returned by AddClient when the maximum number of
// concurrent WebSocket connections has been reached.
var ErrTooManyConnections = errors.New("too many WebSocket connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte

	// terminalKey records the terminal_key announced by a register_dashboard
	// request. It is stored only; no request handler reads it.
	terminalKey string
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans registry, notification, and tiling events out to every
// connected dashboard client (§4.9). It holds no session state of its own —
// the registry is the source of truth for initial_state and server_status.
type Broadcaster struct {
	mu             sync.RWMutex
	clients        map[*client]bool
	maxConns       int
	registry       *session.Registry
	coalesceWindow time.Duration
	snapshotTicker *time.Ticker

	pendingUpdates map[string]*session.Session
	flushTimer     *time.Timer
	flushMu        sync.Mutex

	scanning func() bool
	history  func() []notify.Notification
	seq      atomic.Uint64
}

// NewBroadcaster constructs a Broadcaster backed by registry. coalesceWindow
// bounds how long a session_update may be buffered before flushing
// (§4.9 requires ≤ 50ms). snapshotInterval drives a periodic server_status
// heartbeat; pass 0 to disable it. maxConns of 0 means unlimited.
func NewBroadcaster(registry *session.Registry, coalesceWindow, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		maxConns:       maxConns,
		registry:       registry,
		coalesceWindow: coalesceWindow,
		pendingUpdates: make(map[string]*session.Session),
	}

	if snapshotInterval > 0 {
		b.snapshotTicker = time.NewTicker(snapshotInterval)
		go b.snapshotLoop()
	}

	return b
}

// SetScanning registers a callback reporting whether the process scanner's
// startup sweep is still running, surfaced in initial_state/server_status.
func (b *Broadcaster) SetScanning(fn func() bool) {
	b.mu.Lock()
	b.scanning = fn
	b.mu.Unlock()
}

// SetNotificationHistory registers a callback returning the notification
// engine's FIFO history, replayed to each newly-connected client so it
// catches up on notifications fired before it connected.
func (b *Broadcaster) SetNotificationHistory(fn func() []notify.Notification) {
	b.mu.Lock()
	b.history = fn
	b.mu.Unlock()
}

func (b *Broadcaster) isScanning() bool {
	b.mu.RLock()
	fn := b.scanning
	b.mu.RUnlock()
	if fn == nil {
		return false
	}
	return fn()
}

// AddClient registers conn, starts its write pump, and sends it the
// initial_state snapshot (§4.9). Rejects the connection with
// ErrTooManyConnections once maxConns is reached.
func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"))
		conn.Close()
		return nil, ErrTooManyConnections
	}

	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}
	go c.writePump()
	b.clients[c] = true
	b.mu.Unlock()

	b.SendInitialState(c)
	b.sendNotificationHistory(c)

	return c, nil
}

// sendNotificationHistory replays the notification engine's history to c,
// if a history source has been registered.
func (b *Broadcaster) sendNotificationHistory(c *client) {
	b.mu.RLock()
	fn := b.history
	b.mu.RUnlock()
	if fn == nil {
		return
	}
	msg := WSMessage{Type: MsgNotificationHistory, Payload: NotificationHistoryPayload{History: fn()}}
	msg.Seq = b.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("jacques: notification_history marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// RemoveClient unregisters c. Safe to call more than once (e.g. from both
// the read loop and writePump on the same disconnect).
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// SetDashboardTerminal records the terminal_key a client announced via
// register_dashboard.
func (b *Broadcaster) SetDashboardTerminal(c *client, terminalKey string) {
	b.mu.Lock()
	c.terminalKey = terminalKey
	b.mu.Unlock()
}

// QueueSessionUpdate coalesces repeated updates to the same session within
// coalesceWindow: last-write-wins on the buffer, flushed as a single
// session_update per session at most once per window (§4.9).
func (b *Broadcaster) QueueSessionUpdate(sess *session.Session) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.pendingUpdates[sess.SessionID] = sess
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.coalesceWindow, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	batch := b.pendingUpdates
	b.pendingUpdates = make(map[string]*session.Session)
	b.flushTimer = nil
	b.flushMu.Unlock()

	for _, sess := range batch {
		b.broadcast(WSMessage{Type: MsgSessionUpdate, Payload: SessionUpdatePayload{Session: sess}})
	}
}

// BroadcastSessionRemoved sends session_removed immediately, bypassing the
// coalescing buffer: §5's ordering guarantee requires it to always be the
// last message observed for this session id, so any buffered update for
// the same id is dropped rather than flushed after it.
func (b *Broadcaster) BroadcastSessionRemoved(sessionID string) {
	b.flushMu.Lock()
	delete(b.pendingUpdates, sessionID)
	b.flushMu.Unlock()

	b.broadcast(WSMessage{Type: MsgSessionRemoved, Payload: SessionRemovedPayload{SessionID: sessionID}})
}

// BroadcastFocusChanged sends focus_changed, including a fresh session
// snapshot when sess is non-nil.
func (b *Broadcaster) BroadcastFocusChanged(sessionID string, sess *session.Session) {
	b.broadcast(WSMessage{Type: MsgFocusChanged, Payload: FocusChangedPayload{SessionID: sessionID, Session: sess}})
}

// BroadcastServerStatus sends server_status with the live session count and
// scanning flag.
func (b *Broadcaster) BroadcastServerStatus(status string) {
	b.broadcast(WSMessage{Type: MsgServerStatus, Payload: ServerStatusPayload{
		Status:       status,
		SessionCount: b.registry.ActiveCount(),
		Scanning:     b.isScanning(),
	}})
}

// BroadcastAutocompactToggled fans out the global autocompact toggle.
func (b *Broadcaster) BroadcastAutocompactToggled(enabled bool, warning string) {
	b.broadcast(WSMessage{Type: MsgAutocompactToggled, Payload: AutocompactToggledPayload{Enabled: enabled, Warning: warning}})
}

func (b *Broadcaster) BroadcastHandoffReady(sessionID, path string) {
	b.broadcast(WSMessage{Type: MsgHandoffReady, Payload: HandoffReadyPayload{SessionID: sessionID, Path: path}})
}

func (b *Broadcaster) BroadcastPlanReady(sessionID, title string) {
	b.broadcast(WSMessage{Type: MsgPlanReady, Payload: PlanReadyPayload{SessionID: sessionID, Title: title}})
}

func (b *Broadcaster) BroadcastNotificationFired(n notify.Notification) {
	b.broadcast(WSMessage{Type: MsgNotificationFired, Payload: NotificationFiredPayload{Notification: n}})
}

// snapshotLoop broadcasts a periodic server_status heartbeat so a dashboard
// can detect a stalled or dropped event stream between real mutations.
func (b *Broadcaster) snapshotLoop() {
	for range b.snapshotTicker.C {
		b.BroadcastServerStatus("ok")
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	msg.Seq = b.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("jacques: broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			log.Printf("jacques: ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// SendInitialState sends the §4.9 initial_state message to a single
// newly-connected client.
func (b *Broadcaster) SendInitialState(c *client) {
	payload := InitialStatePayload{
		Sessions: b.registry.GetAllSessions(),
		Focused:  b.registry.GetFocusedSessionID(),
		Scanning: b.isScanning(),
	}
	msg := WSMessage{Type: MsgInitialState, Payload: payload}
	msg.Seq = b.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("jacques: initial_state marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// BroadcastMessage sends an arbitrary WSMessage to all connected clients.
// Used by the server for request/reply results addressed to every client
// (e.g. a worktree change any dashboard may care about).
func (b *Broadcaster) BroadcastMessage(msg WSMessage) {
	b.broadcast(msg)
}

// SendMessage sends msg to a single client, dropping it if the client's
// send buffer is full rather than blocking the caller.
func (b *Broadcaster) SendMessage(c *client, msg WSMessage) {
	msg.Seq = b.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("jacques: reply marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Stop stops the snapshot heartbeat and any pending coalesce timer. It does
// not close client connections.
func (b *Broadcaster) Stop() {
	if b.snapshotTicker != nil {
		b.snapshotTicker.Stop()
	}
	b.flushMu.Lock()
	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}
	b.flushMu.Unlock()
}

// ClientCount returns the number of currently connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
