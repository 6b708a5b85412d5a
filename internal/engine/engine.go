package engine

import (
	"errors"

	"github.com/ALCHACAS2/Dots-Boxes/internal/grid"
)

var ErrAlreadyClaimed = errors.New("edge already claimed")

type Result struct {
	Grid      grid.Grid
	Completed []grid.Box
}

// ApplyEdge claims one edge for claimant and reports the boxes that became
// complete. The input grid is never modified.
//
// There is no turn check here; that belongs to the reconciler.
func ApplyEdge(g grid.Grid, o grid.Orientation, row, col int, claimant string) (Result, error) {
	if g.IsEdgeClaimed(o, row, col) {
		return Result{Grid: g}, ErrAlreadyClaimed
	}

	next := g.Clone()
	next.Claim(o, row, col)

	// Full rescan. Boards are at most 10x10.
	var completed []grid.Box
	for r := 0; r < next.Size(); r++ {
		for c := 0; c < next.Size(); c++ {
			if !next.BoxComplete(r, c) {
				continue
			}
			if next.Assign(r, c, claimant) {
				completed = append(completed, grid.Box{Row: r, Col: c})
			}
		}
	}

	return Result{Grid: next, Completed: completed}, nil
}

func ContainsBox(boxes []grid.Box, b grid.Box) bool {
	for _, box := range boxes {
		if box == b {
			return true
		}
	}
	return false
}
