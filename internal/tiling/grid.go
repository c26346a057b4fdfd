// Package tiling implements the Window Tiling Coordinator (§4.7): grid
// computation, per-display tile state, layout validation, and target
// display selection.
package tiling

import "math"

// Rect is a window or work-area rectangle in OS screen coordinates.
type Rect struct {
	X, Y, W, H float64
}

// columnsPerRow returns the deterministic row/column distribution for n
// windows (§4.7.1). The explicit cases 1-9 are the spec's literal table;
// larger n distributes into ceil(sqrt(n)) rows, filling later rows first.
func columnsPerRow(n int) []int {
	switch n {
	case 0:
		return nil
	case 1:
		return []int{1}
	case 2:
		return []int{2}
	case 3:
		return []int{3}
	case 4:
		return []int{2, 2}
	case 5:
		return []int{2, 3}
	case 6:
		return []int{3, 3}
	case 7:
		return []int{3, 4}
	case 8:
		return []int{4, 4}
	case 9:
		return []int{3, 3, 3}
	}

	rows := int(math.Ceil(math.Sqrt(float64(n))))
	base := n / rows
	rem := n % rows
	cols := make([]int, rows)
	for i := range cols {
		cols[i] = base
	}
	for i := 0; i < rem; i++ {
		cols[rows-1-i]++
	}
	return cols
}

// gridPositions returns the (row, col) coordinate of each of the n rects
// ComputeGrid(workArea, n) would produce, in the same row-major order.
func gridPositions(n int) []struct{ Row, Col int } {
	rowCols := columnsPerRow(n)
	positions := make([]struct{ Row, Col int }, 0, n)
	for r, cols := range rowCols {
		for c := 0; c < cols; c++ {
			positions = append(positions, struct{ Row, Col int }{Row: r, Col: c})
		}
	}
	return positions
}

// ComputeGrid returns n non-overlapping sub-rectangles tiling workArea,
// row-major order. Rounding uses floor for every row/column but the last
// in its group, which absorbs the remainder — this keeps
// sum(slot.W*slot.H) == workArea.W*workArea.H exactly.
func ComputeGrid(workArea Rect, n int) []Rect {
	if n <= 0 {
		return nil
	}

	rowCols := columnsPerRow(n)
	rows := len(rowCols)

	rowHeight := math.Floor(workArea.H / float64(rows))
	rects := make([]Rect, 0, n)

	y := workArea.Y
	for r, colCount := range rowCols {
		h := rowHeight
		if r == rows-1 {
			h = workArea.Y + workArea.H - y
		}

		colWidth := math.Floor(workArea.W / float64(colCount))
		x := workArea.X
		for c := 0; c < colCount; c++ {
			w := colWidth
			if c == colCount-1 {
				w = workArea.X + workArea.W - x
			}
			rects = append(rects, Rect{X: x, Y: y, W: w, H: h})
			x += colWidth
		}
		y += rowHeight
	}

	return rects
}
