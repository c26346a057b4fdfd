package tiling

import "math"

const boundsTolerancePx = 50

// ValidateBounds checks that every slot's current window bounds (as
// reported by getBounds, keyed by terminal key — window bounds are queried
// through window identity, not session id) still match its assigned
// geometry within ±boundsTolerancePx on each axis (§4.7.3). A missing
// window is invalid.
func ValidateBounds(state *TileState, getBounds func(terminalKey string) (Rect, bool)) bool {
	for _, slot := range state.Slots {
		bounds, ok := getBounds(slot.TerminalKey)
		if !ok {
			return false
		}
		if !withinTolerance(bounds, slot.Geometry) {
			return false
		}
	}
	return true
}

func withinTolerance(a, b Rect) bool {
	return closeEnough(a.X, b.X) && closeEnough(a.Y, b.Y) &&
		closeEnough(a.W, b.W) && closeEnough(a.H, b.H)
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= boundsTolerancePx
}

// ValidateSessions checks that every slot's session still exists in the
// registry (§4.7.3).
func ValidateSessions(state *TileState, exists func(sessionID string) bool) bool {
	for _, slot := range state.Slots {
		if !exists(slot.SessionID) {
			return false
		}
	}
	return true
}
