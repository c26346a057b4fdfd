package tiling

import (
	"context"
	"errors"
	"testing"
)

func sumArea(rects []Rect) float64 {
	total := 0.0
	for _, r := range rects {
		total += r.W * r.H
	}
	return total
}

func TestComputeGridAreaInvariant(t *testing.T) {
	workArea := Rect{X: 0, Y: 0, W: 1920, H: 1080}
	for n := 1; n <= 12; n++ {
		rects := ComputeGrid(workArea, n)
		if len(rects) != n {
			t.Fatalf("n=%d: got %d rects, want %d", n, len(rects), n)
		}
		if got := sumArea(rects); got != workArea.W*workArea.H {
			t.Errorf("n=%d: sum area = %v, want %v", n, got, workArea.W*workArea.H)
		}
	}
}

func TestColumnsPerRowFive(t *testing.T) {
	cols := columnsPerRow(5)
	if len(cols) != 2 || cols[0] != 2 || cols[1] != 3 {
		t.Errorf("columnsPerRow(5) = %v, want [2 3]", cols)
	}
}

func TestManagerRemoveSessionRetiles(t *testing.T) {
	m := NewManager()
	workArea := Rect{X: 0, Y: 0, W: 1200, H: 800}
	state := m.BuildFromManualTile("d1", workArea, []TileTarget{
		{SessionID: "a", TerminalKey: "ka"},
		{SessionID: "b", TerminalKey: "kb"},
		{SessionID: "c", TerminalKey: "kc"},
	})
	if len(state.Slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(state.Slots))
	}
	if len(state.ColumnsPerRow) == 0 {
		t.Error("expected ColumnsPerRow to be populated")
	}
	if state.TiledAt == 0 {
		t.Error("expected TiledAt to be set")
	}

	m.RemoveSession("b")

	got, ok := m.GetTileState("d1")
	if !ok {
		t.Fatal("expected tile state to survive removal")
	}
	if len(got.Slots) != 2 {
		t.Fatalf("expected 2 slots after removal, got %d", len(got.Slots))
	}
	if got := sumArea(rectsOf(got.Slots)); got != workArea.W*workArea.H {
		t.Errorf("area after removal = %v, want %v", got, workArea.W*workArea.H)
	}
}

func rectsOf(slots []Slot) []Rect {
	rects := make([]Rect, len(slots))
	for i, s := range slots {
		rects[i] = s.Geometry
	}
	return rects
}

func TestManagerRemoveLastSessionClearsState(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", Rect{W: 100, H: 100}, []TileTarget{{SessionID: "only", TerminalKey: "konly"}})
	m.RemoveSession("only")

	if _, ok := m.GetTileState("d1"); ok {
		t.Error("expected tile state cleared after last session removed")
	}
}

func TestValidateBoundsWithinTolerance(t *testing.T) {
	state := &TileState{Slots: []Slot{{SessionID: "a", TerminalKey: "ka", Geometry: Rect{X: 0, Y: 0, W: 100, H: 100}}}}
	ok := ValidateBounds(state, func(key string) (Rect, bool) {
		if key != "ka" {
			t.Fatalf("getBounds called with %q, want terminal key %q", key, "ka")
		}
		return Rect{X: 10, Y: 0, W: 100, H: 100}, true
	})
	if !ok {
		t.Error("expected bounds within 50px tolerance to validate")
	}
}

func TestValidateBoundsMissingWindow(t *testing.T) {
	state := &TileState{Slots: []Slot{{SessionID: "a", TerminalKey: "ka", Geometry: Rect{W: 100, H: 100}}}}
	ok := ValidateBounds(state, func(key string) (Rect, bool) { return Rect{}, false })
	if ok {
		t.Error("expected missing window to invalidate")
	}
}

func TestSelectTargetDisplayMajorityVote(t *testing.T) {
	displays := []Display{
		{ID: "d1", Bounds: Rect{X: 0, Y: 0, W: 1000, H: 1000}},
		{ID: "d2", Bounds: Rect{X: 1000, Y: 0, W: 1000, H: 1000}},
	}
	centers := map[string][2]float64{
		"k1": {500, 500},
		"k2": {500, 500},
		"k3": {1500, 500},
	}
	got := SelectTargetDisplay([]string{"k1", "k2", "k3"}, displays, func(key string) (float64, float64, bool) {
		c, ok := centers[key]
		return c[0], c[1], ok
	})
	if got == nil || got.ID != "d1" {
		t.Errorf("SelectTargetDisplay = %+v, want d1", got)
	}
}

func TestSelectTargetDisplayFallsBackToPrimary(t *testing.T) {
	displays := []Display{
		{ID: "d1", Bounds: Rect{W: 100, H: 100}},
		{ID: "d2", Bounds: Rect{W: 100, H: 100}, IsPrimary: true},
	}
	got := SelectTargetDisplay(nil, displays, func(string) (float64, float64, bool) { return 0, 0, false })
	if got == nil || got.ID != "d2" {
		t.Errorf("SelectTargetDisplay fallback = %+v, want d2 (primary)", got)
	}
}

type fakePositioner struct {
	fail map[string]bool
}

func (p *fakePositioner) Position(key string, bounds Rect) error {
	if p.fail[key] {
		return errors.New("failed")
	}
	return nil
}

func TestTileWindowsPartialSuccess(t *testing.T) {
	positioner := &fakePositioner{fail: map[string]bool{"k2": true}}
	result := TileWindows(context.Background(), []string{"k1", "k2"}, Rect{W: 200, H: 100}, positioner)

	if result.Success {
		t.Error("expected partial failure, got success")
	}
	if result.Positioned != 1 || result.Total != 2 {
		t.Errorf("Positioned/Total = %d/%d, want 1/2", result.Positioned, result.Total)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want 1 entry", result.Errors)
	}
}
