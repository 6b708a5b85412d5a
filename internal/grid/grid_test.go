package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsSizeBelowOne(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestNew_StartsEmpty(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)

	h, v, boxes := g.Matrices()
	assert.Len(t, h, 4)
	assert.Len(t, h[0], 3)
	assert.Len(t, v, 3)
	assert.Len(t, v[0], 4)
	assert.Len(t, boxes, 3)
	for r := range boxes {
		for c := range boxes[r] {
			assert.Nil(t, boxes[r][c])
		}
	}
	assert.Equal(t, 0, g.OwnedCount())
}

func TestIsEdgeClaimed_PanicsOutOfRange(t *testing.T) {
	g, _ := New(2)

	cases := []struct {
		name string
		o    Orientation
		row  int
		col  int
	}{
		{"horizontal row past bottom", Horizontal, 3, 0},
		{"horizontal col past right", Horizontal, 0, 2},
		{"vertical row past bottom", Vertical, 2, 0},
		{"vertical col past right", Vertical, 0, 3},
		{"negative", Vertical, -1, 0},
		{"unknown orientation", Orientation("d"), 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, func() { g.IsEdgeClaimed(tc.o, tc.row, tc.col) })
		})
	}
}

func TestInBounds_Corners(t *testing.T) {
	g, _ := New(2)
	assert.True(t, g.InBounds(Horizontal, 2, 1))
	assert.True(t, g.InBounds(Vertical, 1, 2))
	assert.False(t, g.InBounds(Horizontal, 2, 2))
	assert.False(t, g.InBounds(Vertical, 2, 2))
}

func TestClone_DoesNotAlias(t *testing.T) {
	g, _ := New(2)
	c := g.Clone()
	c.Claim(Horizontal, 0, 0)
	c.Assign(0, 0, "Alice")

	assert.False(t, g.IsEdgeClaimed(Horizontal, 0, 0))
	assert.Equal(t, "", g.Owner(0, 0))
	assert.True(t, c.IsEdgeClaimed(Horizontal, 0, 0))
}

func TestAssign_KeepsFirstOwner(t *testing.T) {
	g, _ := New(2)
	assert.True(t, g.Assign(1, 1, "Alice"))
	assert.False(t, g.Assign(1, 1, "Bob"))
	assert.Equal(t, "Alice", g.Owner(1, 1))
}

func TestBoxComplete_NeedsAllFourEdges(t *testing.T) {
	g, _ := New(2)
	g.Claim(Horizontal, 0, 1)
	g.Claim(Horizontal, 1, 1)
	g.Claim(Vertical, 0, 1)
	assert.False(t, g.BoxComplete(0, 1))

	g.Claim(Vertical, 0, 2)
	assert.True(t, g.BoxComplete(0, 1))
	assert.False(t, g.BoxComplete(0, 0))
}

func TestFromMatrices_RoundTripsOwnership(t *testing.T) {
	g, _ := New(2)
	g.Claim(Vertical, 1, 2)
	g.Assign(1, 0, "Bob")

	h, v, boxes := g.Matrices()
	back, err := FromMatrices(h, v, boxes)
	require.NoError(t, err)

	assert.Equal(t, 2, back.Size())
	assert.True(t, back.IsEdgeClaimed(Vertical, 1, 2))
	assert.Equal(t, "Bob", back.Owner(1, 0))
	assert.Equal(t, 1, back.OwnedCount())
}

func TestFromMatrices_RejectsBadShapes(t *testing.T) {
	good, _ := New(2)
	h, v, boxes := good.Matrices()

	cases := []struct {
		name  string
		h     [][]bool
		v     [][]bool
		boxes [][]*string
	}{
		{"no vertical rows", h, nil, boxes},
		{"short horizontal", h[:2], v, boxes},
		{"ragged vertical", v[:1], [][]bool{{false, false, false}, {false}}, boxes},
		{"boxes wrong rows", h, v, boxes[:1]},
		{"boxes wrong cols", h, v, [][]*string{{nil}, {nil, nil}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromMatrices(tc.h, tc.v, tc.boxes)
			assert.Error(t, err)
		})
	}
}
