// Package ledger provides the append-only stock movement ledger.
package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
)

// Repository persists movements and the cached stock levels.
// Implementations: storage/memory and storage/postgres.
type Repository interface {
	// Movement operations

	// InsertMovements appends movements whose id and sequence are already assigned.
	InsertMovements(ctx context.Context, movements []entity.Movement) error

	// ListMovements returns movements of one position ordered by sequence (oldest first).
	ListMovements(ctx context.Context, key entity.Key, filter MovementFilter) ([]entity.Movement, error)

	// Level operations

	// GetLevel returns the cached level; a position that never moved yields an empty level.
	GetLevel(ctx context.Context, key entity.Key) (entity.StockLevel, error)

	// GetLevelForUpdate returns the cached level locked for the current transaction.
	GetLevelForUpdate(ctx context.Context, key entity.Key) (entity.StockLevel, error)

	// SaveLevel upserts the cached level.
	SaveLevel(ctx context.Context, level entity.StockLevel) error

	// ListLevels returns cached levels matching the filter ordered by store, product.
	ListLevels(ctx context.Context, filter LevelFilter) ([]entity.StockLevel, error)
}

// TimeRange bounds recordedAt, both ends inclusive. Nil means unbounded.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	TimeRange
	// AfterSequence skips movements with sequence <= AfterSequence.
	AfterSequence int64
	Limit         int
}

// Matches reports whether m passes the filter. Shared by in-memory storage.
func (f MovementFilter) Matches(m entity.Movement) bool {
	if m.Sequence <= f.AfterSequence {
		return false
	}
	if f.From != nil && m.RecordedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.RecordedAt.After(*f.To) {
		return false
	}
	return true
}

// LevelFilter narrows ListLevels. An empty StoreID lists every store.
type LevelFilter struct {
	StoreID     string
	ExcludeZero bool
}
