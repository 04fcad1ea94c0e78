package memory

import (
	"context"
	"sync"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/lots"
)

// CheckpointStore keeps the latest lot pool per position.
type CheckpointStore struct {
	mu    sync.RWMutex
	pools map[entity.Key]lots.Pool
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{pools: make(map[entity.Key]lots.Pool)}
}

var _ lots.CheckpointStore = (*CheckpointStore)(nil)

func (s *CheckpointStore) Load(ctx context.Context, key entity.Key) (*lots.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[key]
	if !ok {
		return nil, nil
	}
	return &pool, nil
}

// Save keeps pool unless a checkpoint further along the ledger is already stored.
func (s *CheckpointStore) Save(ctx context.Context, pool lots.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pool.Key()
	if cur, ok := s.pools[key]; ok && cur.LastSequence >= pool.LastSequence {
		return nil
	}
	s.pools[key] = pool
	return nil
}
