package tiling

import (
	"context"
	"fmt"
	"time"
)

// Positioner is the OS-level "move this window to these pixel bounds"
// primitive (assumed callable — out of scope per §1's external
// collaborators).
type Positioner interface {
	Position(key string, bounds Rect) error
}

// Result is the outcome of a tileWindows call (§4.7.5).
type Result struct {
	Success    bool
	Positioned int
	Total      int
	Errors     []string
}

const interPositionSleep = 100 * time.Millisecond

// TileWindows computes a grid for the given keys over workArea and
// positions each window in turn, sleeping ~100ms between calls since the
// OS automation layer is sensitive to concurrent window mutations.
// Partial success is possible.
func TileWindows(ctx context.Context, keys []string, workArea Rect, positioner Positioner) Result {
	rects := ComputeGrid(workArea, len(keys))

	var errs []string
	positioned := 0

	for i, key := range keys {
		if err := positioner.Position(key, rects[i]); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		} else {
			positioned++
		}

		if i < len(keys)-1 {
			timer := time.NewTimer(interPositionSleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{Success: false, Positioned: positioned, Total: len(keys), Errors: errs}
			case <-timer.C:
			}
		}
	}

	return Result{Success: positioned == len(keys), Positioned: positioned, Total: len(keys), Errors: errs}
}
