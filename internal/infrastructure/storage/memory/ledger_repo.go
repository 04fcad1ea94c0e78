// Package memory provides process-local implementations of the storage
// interfaces. Used by default in development and by the test suites.
package memory

import (
	"context"
	"sort"
	"sync"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/ledger"
)

// LedgerRepo keeps movements and levels in maps guarded by a RWMutex.
type LedgerRepo struct {
	mu        sync.RWMutex
	movements map[entity.Key][]entity.Movement
	levels    map[entity.Key]entity.StockLevel
}

// NewLedgerRepo creates an empty in-memory ledger.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		movements: make(map[entity.Key][]entity.Movement),
		levels:    make(map[entity.Key]entity.StockLevel),
	}
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// InsertMovements appends movements. Sequences must continue each position's history.
func (r *LedgerRepo) InsertMovements(ctx context.Context, movements []entity.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range movements {
		key := m.Key()
		history := r.movements[key]
		if n := len(history); n > 0 && history[n-1].Sequence >= m.Sequence {
			return apperror.NewConcurrentModification("movement", key.String()).
				WithDetail("sequence", m.Sequence)
		}
		r.movements[key] = append(history, m)
	}
	return nil
}

// ListMovements returns a copy of the filtered history.
func (r *LedgerRepo) ListMovements(ctx context.Context, key entity.Key, filter ledger.MovementFilter) ([]entity.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.movements[key]
	start := 0
	if filter.AfterSequence > 0 {
		// Sequences are dense per position and start at 1.
		start = sort.Search(len(history), func(i int) bool {
			return history[i].Sequence > filter.AfterSequence
		})
	}

	out := make([]entity.Movement, 0, len(history)-start)
	for _, m := range history[start:] {
		if !filter.Matches(m) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *LedgerRepo) GetLevel(ctx context.Context, key entity.Key) (entity.StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if level, ok := r.levels[key]; ok {
		return level, nil
	}
	return entity.EmptyLevel(key), nil
}

// GetLevelForUpdate is GetLevel: callers already hold the position lock.
func (r *LedgerRepo) GetLevelForUpdate(ctx context.Context, key entity.Key) (entity.StockLevel, error) {
	return r.GetLevel(ctx, key)
}

func (r *LedgerRepo) SaveLevel(ctx context.Context, level entity.StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.levels[level.Key()] = level
	return nil
}

func (r *LedgerRepo) ListLevels(ctx context.Context, filter ledger.LevelFilter) ([]entity.StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.StockLevel, 0, len(r.levels))
	for key, level := range r.levels {
		if filter.StoreID != "" && key.StoreID != filter.StoreID {
			continue
		}
		if filter.ExcludeZero && level.Quantity.IsZero() && level.ReservedQuantity.IsZero() {
			continue
		}
		out = append(out, level)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// CorruptLevel overwrites a cached level without touching the ledger.
// Exists so audit and rebuild paths can be exercised.
func (r *LedgerRepo) CorruptLevel(level entity.StockLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[level.Key()] = level
}
