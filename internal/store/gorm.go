package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type roomSnapshot struct {
	Code      string `gorm:"primaryKey;size:32"`
	GameType  string `gorm:"size:16"`
	GridSize  int
	State     []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

func (roomSnapshot) TableName() string { return "room_snapshots" }

type Gorm struct {
	db *gorm.DB
}

// NewGorm connects to Postgres and migrates the snapshot table.
func NewGorm(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&roomSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Save(ctx context.Context, code string, gs types.GameState) error {
	state, err := json.Marshal(gs)
	if err != nil {
		return err
	}
	row := roomSnapshot{
		Code:     code,
		GameType: string(gs.GameType),
		GridSize: gs.GridSize,
		State:    state,
	}
	return g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (g *Gorm) Load(ctx context.Context, code string) (types.GameState, error) {
	var row roomSnapshot
	err := g.db.WithContext(ctx).First(&row, "code = ?", code).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return types.GameState{}, ErrNotFound
	case err != nil:
		return types.GameState{}, err
	}

	var gs types.GameState
	if err := json.Unmarshal(row.State, &gs); err != nil {
		return types.GameState{}, fmt.Errorf("decode snapshot %s: %w", code, err)
	}
	return gs, nil
}

func (g *Gorm) Delete(ctx context.Context, code string) error {
	return g.db.WithContext(ctx).Delete(&roomSnapshot{}, "code = ?", code).Error
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
