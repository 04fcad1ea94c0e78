package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/lots"
)

const checkpointPrefix = "stockledger:lots:"

// saveIfNewer writes the checkpoint only when it is further along the ledger
// than the stored one. KEYS[1] hash, ARGV: sequence, payload, ttl in ms.
var saveIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// CheckpointStore keeps lot pool checkpoints in Redis as zstd-compressed JSON.
type CheckpointStore struct {
	client  redis.UniversalClient
	ttl     time.Duration
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ lots.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates the store. ttl <= 0 keeps checkpoints forever.
func NewCheckpointStore(client redis.UniversalClient, ttl time.Duration) (*CheckpointStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &CheckpointStore{
		client:  client,
		ttl:     ttl,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// checkpointKey length-prefixes the store id, so ids containing ':' never
// map two positions to one key.
func checkpointKey(key entity.Key) string {
	return checkpointPrefix + strconv.Itoa(len(key.StoreID)) + ":" + key.StoreID + ":" + key.ProductID
}

// Load returns the stored pool, or nil when the position has none.
func (s *CheckpointStore) Load(ctx context.Context, key entity.Key) (*lots.Pool, error) {
	raw, err := s.client.HGet(ctx, checkpointKey(key), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	data, err := s.decoder.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress checkpoint: %w", err)
	}

	var pool lots.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if pool.Key() != key {
		return nil, fmt.Errorf("checkpoint %s holds position %s", key, pool.Key())
	}
	return &pool, nil
}

// Save stores pool unless a checkpoint with a higher LastSequence exists.
func (s *CheckpointStore) Save(ctx context.Context, pool lots.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	payload := s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))

	err = saveIfNewer.Run(ctx, s.client,
		[]string{checkpointKey(pool.Key())},
		pool.LastSequence, payload, s.ttl.Milliseconds(),
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis save checkpoint: %w", err)
	}
	return nil
}

// Invalidate drops the checkpoint of a position, forcing the next build to replay fully.
func (s *CheckpointStore) Invalidate(ctx context.Context, key entity.Key) error {
	if err := s.client.Del(ctx, checkpointKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
