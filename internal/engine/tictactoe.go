package engine

import (
	"errors"
	"fmt"
)

var ErrCellOutOfRange = errors.New("cell out of range")
var ErrCellTaken = errors.New("cell already taken")
var ErrUnknownSymbol = errors.New("unknown symbol")

const (
	SymbolX = "X"
	SymbolO = "O"
)

const Cells = 9

// Board is a 3x3 three-in-a-row board in row-major order. Empty cells are "".
type Board [Cells]string

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// SymbolFor maps a seat to its symbol: the first seat plays X.
func SymbolFor(orderIndex int) string {
	if orderIndex == 0 {
		return SymbolX
	}
	return SymbolO
}

func Mark(b Board, position int, symbol string) (Board, error) {
	if position < 0 || position >= Cells {
		return b, fmt.Errorf("%w: %d", ErrCellOutOfRange, position)
	}
	if symbol != SymbolX && symbol != SymbolO {
		return b, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	if b[position] != "" {
		return b, ErrCellTaken
	}
	b[position] = symbol
	return b, nil
}

// Winner returns the symbol holding a full line, if any.
func (b Board) Winner() (string, bool) {
	for _, l := range lines {
		if b[l[0]] != "" && b[l[0]] == b[l[1]] && b[l[1]] == b[l[2]] {
			return b[l[0]], true
		}
	}
	return "", false
}

func (b Board) Full() bool {
	for _, c := range b {
		if c == "" {
			return false
		}
	}
	return true
}

// Draw is a full board with no line.
func (b Board) Draw() bool {
	_, won := b.Winner()
	return !won && b.Full()
}

func (b Board) Wire() []*string {
	out := make([]*string, Cells)
	for i, c := range b {
		if c != "" {
			s := c
			out[i] = &s
		}
	}
	return out
}

func BoardFromWire(cells []*string) (Board, error) {
	var b Board
	if cells == nil {
		return b, nil
	}
	if len(cells) != Cells {
		return b, fmt.Errorf("%w: board has %d cells", ErrCellOutOfRange, len(cells))
	}
	for i, c := range cells {
		if c == nil {
			continue
		}
		if *c != SymbolX && *c != SymbolO {
			return b, fmt.Errorf("%w: %q", ErrUnknownSymbol, *c)
		}
		b[i] = *c
	}
	return b, nil
}
