package lots

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/metrics"
	"stockledger/pkg/logger"
)

// MovementSource reads the tail of a position's history. Implemented by ledger.Service.
type MovementSource interface {
	MovementsAfter(ctx context.Context, key entity.Key, afterSequence int64) ([]entity.Movement, error)
}

// CheckpointStore persists pool snapshots so later builds replay only the tail.
// Load returns (nil, nil) when the position has no checkpoint.
type CheckpointStore interface {
	Load(ctx context.Context, key entity.Key) (*Pool, error)
	Save(ctx context.Context, pool Pool) error
}

// DefaultCheckpointEvery is the number of replayed movements that triggers a new checkpoint.
const DefaultCheckpointEvery = 100

// Tracker builds lot pools from the ledger.
type Tracker struct {
	source  MovementSource
	store   CheckpointStore
	every   int
	metrics metrics.Collector
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithCheckpoints enables checkpointing. every <= 0 uses DefaultCheckpointEvery.
func WithCheckpoints(store CheckpointStore, every int) Option {
	return func(t *Tracker) {
		if every <= 0 {
			every = DefaultCheckpointEvery
		}
		t.store = store
		t.every = every
	}
}

// WithMetrics sets the collector.
func WithMetrics(c metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = metrics.OrNop(c) }
}

// NewTracker creates a Tracker reading from source.
func NewTracker(source MovementSource, opts ...Option) *Tracker {
	t := &Tracker{
		source:  source,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BuildLots returns the current lot pool of a position.
// A broken checkpoint store degrades to full replay; it never fails the build.
func (t *Tracker) BuildLots(ctx context.Context, storeID, productID string) (Pool, error) {
	start := time.Now()
	key := entity.NewKey(storeID, productID)
	base := NewPool(key)

	if t.store != nil {
		cp, err := t.store.Load(ctx, key)
		switch {
		case err != nil:
			logger.Warn(ctx, "lot checkpoint unavailable, replaying full history",
				"store_id", storeID, "product_id", productID, "error", err)
		case cp != nil && cp.Key() == key:
			base = *cp
			t.metrics.Record(metrics.Event{Name: metrics.EventCheckpointHit})
		}
	}

	tail, err := t.source.MovementsAfter(ctx, key, base.LastSequence)
	if err != nil {
		return Pool{}, fmt.Errorf("read movements of %s after %d: %w", key, base.LastSequence, err)
	}
	pool := base.Extend(tail)

	if t.store != nil && len(tail) >= t.every {
		if err := t.store.Save(ctx, pool); err != nil {
			logger.Warn(ctx, "failed to save lot checkpoint",
				"store_id", storeID, "product_id", productID, "error", err)
		}
	}

	if pool.Warning() != nil {
		t.metrics.Record(metrics.Event{Name: metrics.EventIntegrityWarning})
		logger.Warn(ctx, "exits exceed recorded arrivals",
			"store_id", storeID,
			"product_id", productID,
			"unconsumed", pool.Unconsumed.String(),
		)
	}

	t.metrics.Record(metrics.Event{
		Name:     metrics.EventLotsBuilt,
		Duration: time.Since(start),
	})
	return pool, nil
}
