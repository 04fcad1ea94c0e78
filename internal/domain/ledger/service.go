package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Guard inspects the locked levels of every position touched by a batch before
// anything is written. Returning an error aborts the whole batch.
type Guard func(levels map[entity.Key]entity.StockLevel) error

// Service is the movement ledger. Appends for one stock position are serialized
// by a keyed lock held across guard evaluation and write; the repository adds a
// row lock (SELECT ... FOR UPDATE) when it is backed by a database.
type Service struct {
	repo    Repository
	txm     tx.Manager
	locks   *keylock.Locker[entity.Key]
	metrics metrics.Collector
	now     func() time.Time
}

// NewService creates a ledger service. A nil tx manager runs writes directly.
func NewService(repo Repository, txm tx.Manager, collector metrics.Collector) *Service {
	if txm == nil {
		txm = tx.Direct
	}
	return &Service{
		repo:    repo,
		txm:     txm,
		locks:   keylock.New(entity.Key.Less),
		metrics: metrics.OrNop(collector),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for recordedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Append validates and records one movement. It performs no sufficiency check.
func (s *Service) Append(ctx context.Context, m entity.NewMovement) (entity.Movement, error) {
	out, err := s.AppendBatch(ctx, []entity.NewMovement{m}, nil)
	if err != nil {
		return entity.Movement{}, err
	}
	return out[0], nil
}

// AppendBatch records several movements atomically. All touched positions are
// locked for the duration, so guard decisions cannot act on a stale snapshot.
func (s *Service) AppendBatch(ctx context.Context, movements []entity.NewMovement, guard Guard) ([]entity.Movement, error) {
	if len(movements) == 0 {
		return nil, apperror.NewInvalidMovement("no movements to append")
	}

	keys := make([]entity.Key, 0, len(movements))
	for i, m := range movements {
		if err := ValidateMovement(m); err != nil {
			s.metrics.Record(metrics.Event{Name: metrics.EventMovementRejected})
			if appErr, ok := apperror.AsAppError(err); ok && len(movements) > 1 {
				appErr.WithDetail("index", i)
			}
			return nil, err
		}
		keys = append(keys, m.Key())
	}

	start := time.Now()
	unlock, err := s.locks.LockAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("acquire position locks: %w", err)
	}
	defer unlock()

	var recorded []entity.Movement
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		levels, err := s.lockedLevels(ctx, keys)
		if err != nil {
			return err
		}

		if guard != nil {
			snapshot := make(map[entity.Key]entity.StockLevel, len(levels))
			for k, v := range levels {
				snapshot[k] = v
			}
			if err := guard(snapshot); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		recorded = make([]entity.Movement, 0, len(movements))
		for _, m := range movements {
			key := m.Key()
			level := levels[key]
			recordedAt := now
			// recordedAt never goes backwards within a position; lot ordering relies on it.
			if recordedAt.Before(level.LastUpdated) {
				recordedAt = level.LastUpdated
			}
			mv := entity.Movement{
				ID:            id.New(),
				StoreID:       m.StoreID,
				ProductID:     m.ProductID,
				Sequence:      level.Version + 1,
				Type:          m.Type,
				QuantityDelta: m.QuantityDelta,
				UnitCost:      m.UnitCost,
				RecordedAt:    recordedAt,
				ReferenceID:   m.ReferenceID,
				ReferenceType: m.ReferenceType,
			}
			levels[key] = level.Apply(mv)
			recorded = append(recorded, mv)
		}

		if err := s.repo.InsertMovements(ctx, recorded); err != nil {
			return fmt.Errorf("insert movements: %w", err)
		}
		for _, key := range s.locks.Canonical(keys) {
			if err := s.repo.SaveLevel(ctx, levels[key]); err != nil {
				return fmt.Errorf("save level %s: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		if apperror.HasCode(err, apperror.CodeInsufficientStock) {
			s.metrics.Record(metrics.Event{Name: metrics.EventInsufficientStock})
		}
		return nil, err
	}

	s.metrics.Record(metrics.Event{
		Name:     metrics.EventMovementAppended,
		Count:    int64(len(recorded)),
		Duration: time.Since(start),
	})
	logger.Debug(ctx, "movements appended",
		"count", len(recorded),
		"first_id", recorded[0].ID,
		"type", recorded[0].Type,
	)

	return recorded, nil
}

func (s *Service) lockedLevels(ctx context.Context, keys []entity.Key) (map[entity.Key]entity.StockLevel, error) {
	levels := make(map[entity.Key]entity.StockLevel, len(keys))
	for _, key := range s.locks.Canonical(keys) {
		level, err := s.repo.GetLevelForUpdate(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get level for update %s: %w", key, err)
		}
		levels[key] = level
	}
	return levels, nil
}

// RequireAvailable returns a guard that rejects the batch when any position
// lacks the requested available quantity.
func RequireAvailable(required map[entity.Key]types.Quantity) Guard {
	return func(levels map[entity.Key]entity.StockLevel) error {
		for _, key := range sortedKeys(required) {
			want := required[key]
			level := levels[key]
			if want > level.AvailableQuantity() {
				return apperror.NewInsufficientStock(key.StoreID, key.ProductID, want.String(), level.AvailableQuantity().String())
			}
		}
		return nil
	}
}

func sortedKeys(m map[entity.Key]types.Quantity) []entity.Key {
	out := make([]entity.Key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// RecordLoss declares a loss of qty units. Unlike Append, it refuses to drive
// available stock below zero.
func (s *Service) RecordLoss(ctx context.Context, storeID, productID string, qty types.Quantity, referenceID string) (entity.Movement, error) {
	if !qty.IsPositive() {
		return entity.Movement{}, apperror.NewInvalidMovement("loss quantity must be positive").
			WithDetail("field", "quantity")
	}
	key := entity.NewKey(storeID, productID)
	out, err := s.AppendBatch(ctx, []entity.NewMovement{{
		StoreID:       storeID,
		ProductID:     productID,
		Type:          entity.MovementLoss,
		QuantityDelta: qty.Neg(),
		ReferenceID:   referenceID,
		ReferenceType: "loss_declaration",
	}}, RequireAvailable(map[entity.Key]types.Quantity{key: qty}))
	if err != nil {
		return entity.Movement{}, err
	}
	logger.Info(ctx, "loss recorded", "store_id", storeID, "product_id", productID, "quantity", qty.String())
	return out[0], nil
}

// Reserve holds qty units of available stock.
func (s *Service) Reserve(ctx context.Context, storeID, productID string, qty types.Quantity) (entity.StockLevel, error) {
	return s.adjustReservation(ctx, entity.NewKey(storeID, productID), qty)
}

// Release frees previously reserved units.
func (s *Service) Release(ctx context.Context, storeID, productID string, qty types.Quantity) (entity.StockLevel, error) {
	return s.adjustReservation(ctx, entity.NewKey(storeID, productID), qty.Neg())
}

func (s *Service) adjustReservation(ctx context.Context, key entity.Key, delta types.Quantity) (entity.StockLevel, error) {
	if err := validateKey(key); err != nil {
		return entity.StockLevel{}, err
	}
	if delta.IsZero() {
		return entity.StockLevel{}, apperror.NewValidation("reservation quantity must be non-zero")
	}

	unlock, err := s.locks.LockAll(ctx, []entity.Key{key})
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("acquire position lock: %w", err)
	}
	defer unlock()

	var result entity.StockLevel
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		level, err := s.repo.GetLevelForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("get level for update %s: %w", key, err)
		}
		if delta.IsPositive() && delta > level.AvailableQuantity() {
			return apperror.NewInsufficientStock(key.StoreID, key.ProductID, delta.String(), level.AvailableQuantity().String())
		}
		if delta.IsNegative() && delta.Neg() > level.ReservedQuantity {
			return apperror.NewValidation("cannot release more than reserved").
				WithDetail("reserved", level.ReservedQuantity.String())
		}
		level.ReservedQuantity += delta
		if err := s.repo.SaveLevel(ctx, level); err != nil {
			return fmt.Errorf("save level %s: %w", key, err)
		}
		result = level
		return nil
	})
	return result, err
}

// CurrentLevel returns the cached level of a position.
func (s *Service) CurrentLevel(ctx context.Context, storeID, productID string) (entity.StockLevel, error) {
	key := entity.NewKey(storeID, productID)
	if err := validateKey(key); err != nil {
		return entity.StockLevel{}, err
	}
	return s.repo.GetLevel(ctx, key)
}

// ListLevels returns the cached levels of a store (every store when storeID is empty).
func (s *Service) ListLevels(ctx context.Context, storeID string, excludeZero bool) ([]entity.StockLevel, error) {
	return s.repo.ListLevels(ctx, LevelFilter{StoreID: storeID, ExcludeZero: excludeZero})
}

// ListMovements returns the movements of a position within a time range, oldest first.
func (s *Service) ListMovements(ctx context.Context, storeID, productID string, r TimeRange) ([]entity.Movement, error) {
	key := entity.NewKey(storeID, productID)
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if r.From != nil && r.To != nil && r.To.Before(*r.From) {
		return nil, apperror.NewValidation("time range end precedes start")
	}
	return s.repo.ListMovements(ctx, key, MovementFilter{TimeRange: r})
}

// MovementsAfter returns the movements of a position with sequence > afterSequence.
func (s *Service) MovementsAfter(ctx context.Context, key entity.Key, afterSequence int64) ([]entity.Movement, error) {
	return s.repo.ListMovements(ctx, key, MovementFilter{AfterSequence: afterSequence})
}

// ReplayLevel recomputes a level from the full movement history.
// Reservations are not movements, so the reserved quantity comes from the cache.
func (s *Service) ReplayLevel(ctx context.Context, storeID, productID string) (entity.StockLevel, error) {
	key := entity.NewKey(storeID, productID)
	if err := validateKey(key); err != nil {
		return entity.StockLevel{}, err
	}
	return s.replay(ctx, key)
}

func (s *Service) replay(ctx context.Context, key entity.Key) (entity.StockLevel, error) {
	movements, err := s.repo.ListMovements(ctx, key, MovementFilter{})
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("list movements %s: %w", key, err)
	}
	cached, err := s.repo.GetLevel(ctx, key)
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("get level %s: %w", key, err)
	}

	level := entity.EmptyLevel(key)
	for _, m := range movements {
		level = level.Apply(m)
	}
	level.ReservedQuantity = cached.ReservedQuantity
	return level, nil
}

// AuditResult compares the cached level with a full replay.
type AuditResult struct {
	Cached     entity.StockLevel `json:"cached"`
	Replayed   entity.StockLevel `json:"replayed"`
	Consistent bool              `json:"consistent"`
}

// Audit checks that the cached level still equals the sum of the ledger.
func (s *Service) Audit(ctx context.Context, storeID, productID string) (AuditResult, error) {
	key := entity.NewKey(storeID, productID)
	if err := validateKey(key); err != nil {
		return AuditResult{}, err
	}
	cached, err := s.repo.GetLevel(ctx, key)
	if err != nil {
		return AuditResult{}, fmt.Errorf("get level %s: %w", key, err)
	}
	replayed, err := s.replay(ctx, key)
	if err != nil {
		return AuditResult{}, err
	}

	result := AuditResult{
		Cached:     cached,
		Replayed:   replayed,
		Consistent: cached.Quantity == replayed.Quantity && cached.Version == replayed.Version,
	}
	if !result.Consistent {
		logger.Warn(ctx, "stock level cache diverged from ledger",
			"store_id", storeID,
			"product_id", productID,
			"cached_quantity", cached.Quantity.String(),
			"replayed_quantity", replayed.Quantity.String(),
		)
	}
	return result, nil
}

// Rebuild overwrites the cached level with the replayed one.
func (s *Service) Rebuild(ctx context.Context, storeID, productID string) (entity.StockLevel, error) {
	key := entity.NewKey(storeID, productID)
	if err := validateKey(key); err != nil {
		return entity.StockLevel{}, err
	}

	unlock, err := s.locks.LockAll(ctx, []entity.Key{key})
	if err != nil {
		return entity.StockLevel{}, fmt.Errorf("acquire position lock: %w", err)
	}
	defer unlock()

	var level entity.StockLevel
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetLevelForUpdate(ctx, key); err != nil {
			return fmt.Errorf("get level for update %s: %w", key, err)
		}
		replayed, err := s.replay(ctx, key)
		if err != nil {
			return err
		}
		if err := s.repo.SaveLevel(ctx, replayed); err != nil {
			return fmt.Errorf("save level %s: %w", key, err)
		}
		level = replayed
		return nil
	})
	if err != nil {
		return entity.StockLevel{}, err
	}

	logger.Info(ctx, "stock level rebuilt from ledger",
		"store_id", storeID, "product_id", productID, "quantity", level.Quantity.String())
	return level, nil
}

func validateKey(key entity.Key) error {
	if strings.TrimSpace(key.StoreID) == "" {
		return apperror.NewValidation("store id is required").WithDetail("field", "storeId")
	}
	if strings.TrimSpace(key.ProductID) == "" {
		return apperror.NewValidation("product id is required").WithDetail("field", "productId")
	}
	return nil
}
