package tiling

// Display is one OS-reported monitor.
type Display struct {
	ID        string
	Bounds    Rect
	IsPrimary bool
}

func containsPoint(r Rect, x, y float64) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// SelectTargetDisplay picks the display to tile on by majority vote over
// each key's current window centre-point (§4.7.4): whichever display
// contains the most window centres wins; ties keep the first display
// reaching that vote count. Falls back to the primary display, then the
// first display, when no key's centre resolves to any display.
func SelectTargetDisplay(keys []string, displays []Display, windowCenter func(key string) (x, y float64, ok bool)) *Display {
	if len(displays) == 0 {
		return nil
	}

	votes := make(map[string]int)
	for _, key := range keys {
		x, y, ok := windowCenter(key)
		if !ok {
			continue
		}
		for _, d := range displays {
			if containsPoint(d.Bounds, x, y) {
				votes[d.ID]++
				break
			}
		}
	}

	bestIdx := -1
	bestVotes := 0
	for i, d := range displays {
		if v := votes[d.ID]; v > bestVotes {
			bestVotes = v
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		return &displays[bestIdx]
	}

	for i, d := range displays {
		if d.IsPrimary {
			return &displays[i]
		}
	}
	return &displays[0]
}
