// Package store keeps the latest game snapshot of each room so a returning
// player can be resynced.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

var ErrNotFound = errors.New("snapshot not found")

type Store interface {
	Save(ctx context.Context, code string, gs types.GameState) error
	Load(ctx context.Context, code string) (types.GameState, error)
	Delete(ctx context.Context, code string) error
	Close() error
}

type Memory struct {
	mu    sync.RWMutex
	rooms map[string]types.GameState
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]types.GameState)}
}

func (m *Memory) Save(_ context.Context, code string, gs types.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[code] = gs
	return nil
}

func (m *Memory) Load(_ context.Context, code string) (types.GameState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gs, ok := m.rooms[code]
	if !ok {
		return types.GameState{}, ErrNotFound
	}
	return gs, nil
}

func (m *Memory) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	return nil
}

func (m *Memory) Close() error { return nil }
