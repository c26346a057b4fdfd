package tiling

import (
	"sync"
	"time"
)

// Slot is one occupied rectangle within a TileState.
type Slot struct {
	SessionID   string `json:"session_id"`
	TerminalKey string `json:"terminal_key"`
	Column      int    `json:"column"`
	Row         int    `json:"row"`
	Geometry    Rect   `json:"geometry"`
}

// TileState is the current tiling layout for one display (§4.7.2).
type TileState struct {
	DisplayID     string `json:"display_id"`
	WorkArea      Rect   `json:"work_area"`
	Slots         []Slot `json:"slots"`
	ColumnsPerRow []int  `json:"columns_per_row"`
	TiledAt       int64  `json:"tiled_at"`
}

// TileTarget pairs the session a slot belongs to with the terminal key its
// window is addressed by — the OS positions windows by terminal key, not
// session id.
type TileTarget struct {
	SessionID   string
	TerminalKey string
}

// Manager owns all per-display TileStates (§3: "TileState is exclusively
// owned by the Window Tiling Coordinator").
type Manager struct {
	mu     sync.Mutex
	states map[string]*TileState
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{states: make(map[string]*TileState)}
}

// GetTileState returns the TileState for a display, if one exists.
func (m *Manager) GetTileState(displayID string) (*TileState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[displayID]
	return s, ok
}

// SetTileState stores a TileState, replacing any existing one for its
// display.
func (m *Manager) SetTileState(state *TileState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.DisplayID] = state
}

// ClearTileState removes the TileState for a display.
func (m *Manager) ClearTileState(displayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, displayID)
}

// GetAnyTileState returns an arbitrary TileState, useful when the caller
// doesn't know which display is in play.
func (m *Manager) GetAnyTileState() (*TileState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.states {
		return s, true
	}
	return nil, false
}

// BuildFromManualTile computes a grid for targets, persists it as the
// display's TileState, and returns it.
func (m *Manager) BuildFromManualTile(displayID string, workArea Rect, targets []TileTarget) *TileState {
	n := len(targets)
	rects := ComputeGrid(workArea, n)
	positions := gridPositions(n)
	slots := make([]Slot, n)
	for i, target := range targets {
		slots[i] = Slot{
			SessionID:   target.SessionID,
			TerminalKey: target.TerminalKey,
			Row:         positions[i].Row,
			Column:      positions[i].Col,
			Geometry:    rects[i],
		}
	}
	state := &TileState{
		DisplayID:     displayID,
		WorkArea:      workArea,
		Slots:         slots,
		ColumnsPerRow: columnsPerRow(n),
		TiledAt:       time.Now().UnixMilli(),
	}
	m.SetTileState(state)
	return state
}

// RemoveSession drops sessionID from whichever TileState holds it and
// recomputes the grid for the remaining slots (§4.7.2). A TileState left
// with zero slots is deleted entirely.
func (m *Manager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for displayID, state := range m.states {
		idx := -1
		for i, slot := range state.Slots {
			if slot.SessionID == sessionID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		remaining := make([]TileTarget, 0, len(state.Slots)-1)
		for i, slot := range state.Slots {
			if i != idx {
				remaining = append(remaining, TileTarget{SessionID: slot.SessionID, TerminalKey: slot.TerminalKey})
			}
		}

		if len(remaining) == 0 {
			delete(m.states, displayID)
			continue
		}

		rects := ComputeGrid(state.WorkArea, len(remaining))
		positions := gridPositions(len(remaining))
		slots := make([]Slot, len(remaining))
		for i, target := range remaining {
			slots[i] = Slot{
				SessionID:   target.SessionID,
				TerminalKey: target.TerminalKey,
				Row:         positions[i].Row,
				Column:      positions[i].Col,
				Geometry:    rects[i],
			}
		}
		state.Slots = slots
		state.ColumnsPerRow = columnsPerRow(len(remaining))
		state.TiledAt = time.Now().UnixMilli()
	}
}
