// Package metrics defines the caller-owned metrics collector the engine reports to.
//
// Services receive a Collector explicitly; there are no package-level counters,
// so two engines (tenants, tests) never share state.
package metrics

import (
	"sync"
	"time"
)

// Event names recorded by the engine.
const (
	EventMovementAppended   = "movement_appended"
	EventMovementRejected   = "movement_rejected"
	EventInsufficientStock  = "insufficient_stock"
	EventLotsBuilt          = "lots_built"
	EventCheckpointHit      = "lot_checkpoint_hit"
	EventIntegrityWarning   = "ledger_integrity_warning"
	EventValuation          = "valuation"
	EventBatchValuation     = "batch_valuation"
	EventLotFetchFailure    = "lot_fetch_failure"
	EventReconciliation     = "reconciliation"
	EventAdjustmentAccepted = "count_adjustment_accepted"
	EventTransferInitiated  = "transfer_initiated"
	EventTransferReceived   = "transfer_received"
)

// Event is one observation.
type Event struct {
	Name     string
	Duration time.Duration
	Count    int64
	Labels   map[string]string
}

// Collector receives events and exposes an aggregated snapshot.
type Collector interface {
	Record(event Event)
	Snapshot() Snapshot
}

// Stat aggregates all events with the same name.
type Stat struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// AverageDuration returns TotalDuration / Count.
func (s Stat) AverageDuration() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Count)
}

// Snapshot is a point-in-time copy of the collector state.
type Snapshot struct {
	TakenAt time.Time       `json:"takenAt"`
	Stats   map[string]Stat `json:"stats"`
}

// Count returns the accumulated count for name.
func (s Snapshot) Count(name string) int64 {
	return s.Stats[name].Count
}

// InMemory is a thread-safe Collector keeping per-event aggregates.
type InMemory struct {
	mu    sync.Mutex
	stats map[string]Stat
	now   func() time.Time
}

// NewInMemory creates an empty in-memory collector.
func NewInMemory() *InMemory {
	return &InMemory{stats: make(map[string]Stat), now: time.Now}
}

// Record implements Collector. Count defaults to 1.
func (c *InMemory) Record(event Event) {
	n := event.Count
	if n == 0 {
		n = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats[event.Name]
	st.Count += n
	st.TotalDuration += event.Duration
	if event.Duration > st.MaxDuration {
		st.MaxDuration = event.Duration
	}
	c.stats[event.Name] = st
}

// Snapshot implements Collector.
func (c *InMemory) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make(map[string]Stat, len(c.stats))
	for k, v := range c.stats {
		stats[k] = v
	}
	return Snapshot{TakenAt: c.now().UTC(), Stats: stats}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}

func (Nop) Snapshot() Snapshot { return Snapshot{Stats: map[string]Stat{}} }

// OrNop returns c, or a Nop collector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return Nop{}
	}
	return c
}
