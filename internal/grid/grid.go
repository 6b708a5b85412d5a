package grid

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("grid size must be at least 1")
var ErrShapeMismatch = errors.New("grid matrices do not match size")

type Orientation string

const (
	Horizontal Orientation = "h"
	Vertical   Orientation = "v"
)

func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

// Box addresses one cell of the board.
type Box struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Grid is an N×N box board. Horizontal edges are (N+1)×N, vertical edges
// are N×(N+1). An empty owner means the box is not complete yet.
//
// The zero value is not usable; build one with New or FromMatrices.
type Grid struct {
	size       int
	horizontal [][]bool
	vertical   [][]bool
	owners     [][]string
}

func New(size int) (Grid, error) {
	if size < 1 {
		return Grid{}, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	return Grid{
		size:       size,
		horizontal: boolMatrix(size+1, size),
		vertical:   boolMatrix(size, size+1),
		owners:     stringMatrix(size, size),
	}, nil
}

// FromMatrices builds a grid from wire matrices. boxes may be nil, in which
// case ownership starts empty. Ownership is not re-derived from the edges.
func FromMatrices(horizontal, vertical [][]bool, boxes [][]*string) (Grid, error) {
	size := len(vertical)
	if size < 1 {
		return Grid{}, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if !hasShape(horizontal, size+1, size) || !hasShape(vertical, size, size+1) {
		return Grid{}, ErrShapeMismatch
	}

	g, _ := New(size)
	for r := range horizontal {
		copy(g.horizontal[r], horizontal[r])
	}
	for r := range vertical {
		copy(g.vertical[r], vertical[r])
	}

	if boxes != nil {
		if len(boxes) != size {
			return Grid{}, ErrShapeMismatch
		}
		for r := range boxes {
			if len(boxes[r]) != size {
				return Grid{}, ErrShapeMismatch
			}
			for c, owner := range boxes[r] {
				if owner != nil {
					g.owners[r][c] = *owner
				}
			}
		}
	}
	return g, nil
}

func (g Grid) Size() int { return g.size }

// InBounds reports whether (row, col) names an existing edge.
func (g Grid) InBounds(o Orientation, row, col int) bool {
	switch o {
	case Horizontal:
		return row >= 0 && row <= g.size && col >= 0 && col < g.size
	case Vertical:
		return row >= 0 && row < g.size && col >= 0 && col <= g.size
	default:
		return false
	}
}

// IsEdgeClaimed panics on an out-of-range edge. Callers validate with InBounds.
func (g Grid) IsEdgeClaimed(o Orientation, row, col int) bool {
	g.mustBeInBounds(o, row, col)
	if o == Horizontal {
		return g.horizontal[row][col]
	}
	return g.vertical[row][col]
}

func (g Grid) BoxComplete(row, col int) bool {
	return g.horizontal[row][col] && g.horizontal[row+1][col] &&
		g.vertical[row][col] && g.vertical[row][col+1]
}

func (g Grid) Owner(row, col int) string {
	return g.owners[row][col]
}

// OwnedCount is the number of boxes with an owner.
func (g Grid) OwnedCount() int {
	n := 0
	for r := range g.owners {
		for c := range g.owners[r] {
			if g.owners[r][c] != "" {
				n++
			}
		}
	}
	return n
}

// Claim marks an edge on g in place. Use on a Clone.
func (g Grid) Claim(o Orientation, row, col int) {
	g.mustBeInBounds(o, row, col)
	if o == Horizontal {
		g.horizontal[row][col] = true
		return
	}
	g.vertical[row][col] = true
}

// Assign sets the owner of a box in place. An owned box keeps its owner and
// Assign reports false.
func (g Grid) Assign(row, col int, owner string) bool {
	if g.owners[row][col] != "" {
		return false
	}
	g.owners[row][col] = owner
	return true
}

func (g Grid) Clone() Grid {
	out := Grid{size: g.size}
	out.horizontal = make([][]bool, len(g.horizontal))
	for r := range g.horizontal {
		out.horizontal[r] = append([]bool(nil), g.horizontal[r]...)
	}
	out.vertical = make([][]bool, len(g.vertical))
	for r := range g.vertical {
		out.vertical[r] = append([]bool(nil), g.vertical[r]...)
	}
	out.owners = make([][]string, len(g.owners))
	for r := range g.owners {
		out.owners[r] = append([]string(nil), g.owners[r]...)
	}
	return out
}

// Matrices returns copies in wire shape: unowned boxes are nil.
func (g Grid) Matrices() (horizontal, vertical [][]bool, boxes [][]*string) {
	c := g.Clone()
	boxes = make([][]*string, g.size)
	for r := range c.owners {
		boxes[r] = make([]*string, g.size)
		for col, owner := range c.owners[r] {
			if owner != "" {
				o := owner
				boxes[r][col] = &o
			}
		}
	}
	return c.horizontal, c.vertical, boxes
}

func (g Grid) mustBeInBounds(o Orientation, row, col int) {
	if !g.InBounds(o, row, col) {
		panic(fmt.Sprintf("grid: edge %s(%d,%d) out of range for size %d", o, row, col, g.size))
	}
}

func boolMatrix(rows, cols int) [][]bool {
	m := make([][]bool, rows)
	for r := range m {
		m[r] = make([]bool, cols)
	}
	return m
}

func stringMatrix(rows, cols int) [][]string {
	m := make([][]string, rows)
	for r := range m {
		m[r] = make([]string, cols)
	}
	return m
}

func hasShape[T any](m [][]T, rows, cols int) bool {
	if len(m) != rows {
		return false
	}
	for _, row := range m {
		if len(row) != cols {
			return false
		}
	}
	return true
}
