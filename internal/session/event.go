package session

// EventType classifies registry lifecycle events.
type EventType int

const (
	EventUpdated  EventType = iota // session created or mutated in place
	EventRemoved                   // session left the registry
	EventFocused                   // focused_session_id changed
)

// Event carries a session snapshot to observers (the WebSocket broker, the
// notification engine). State is a defensive copy safe to retain.
type Event struct {
	Type  EventType
	State *Session // nil when Type == EventFocused and no session is focused
	ID    string   // session_id (set for EventRemoved too; empty for EventFocused when focus is cleared)
}
