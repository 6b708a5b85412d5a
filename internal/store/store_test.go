package store

import (
	"context"
	"os"
	"testing"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	defer s.Close()

	_, err := s.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	turn := 1
	gs := types.GameState{GameType: types.GameDotsBoxes, GridSize: 2, TurnIndex: &turn}
	require.NoError(t, s.Save(ctx, "abc", gs))

	got, err := s.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, gs, got)

	require.NoError(t, s.Delete(ctx, "abc"))
	_, err = s.Load(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Save(ctx, "r", types.GameState{GridSize: 2}))
	require.NoError(t, s.Save(ctx, "r", types.GameState{GridSize: 4}))

	got, err := s.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 4, got.GridSize)
}

func TestSnapshotTableName(t *testing.T) {
	assert.Equal(t, "room_snapshots", roomSnapshot{}.TableName())
}

func openGorm(t *testing.T) *Gorm {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	g, err := NewGorm(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGorm_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	g := openGorm(t)
	code := "t-" + uuid.NewString()[:8]
	t.Cleanup(func() { g.Delete(ctx, code) })

	_, err := g.Load(ctx, code)
	assert.ErrorIs(t, err, ErrNotFound)

	turn := 0
	gs := types.GameState{GameType: types.GameDotsBoxes, GridSize: 3, TurnIndex: &turn}
	require.NoError(t, g.Save(ctx, code, gs))

	got, err := g.Load(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, gs, got)

	require.NoError(t, g.Delete(ctx, code))
	_, err = g.Load(ctx, code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGorm_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	g := openGorm(t)
	code := "t-" + uuid.NewString()[:8]
	t.Cleanup(func() { g.Delete(ctx, code) })

	require.NoError(t, g.Save(ctx, code, types.GameState{GameType: types.GameDotsBoxes, GridSize: 2}))
	require.NoError(t, g.Save(ctx, code, types.GameState{GameType: types.GameTicTacToe, GridSize: 3}))

	got, err := g.Load(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, types.GameTicTacToe, got.GameType)
	assert.Equal(t, 3, got.GridSize)
}

func TestGorm_DeleteMissingIsNoop(t *testing.T) {
	g := openGorm(t)
	assert.NoError(t, g.Delete(context.Background(), "t-"+uuid.NewString()[:8]))
}
