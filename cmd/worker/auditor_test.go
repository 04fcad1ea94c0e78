package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/pkg/logger"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []entity.Key
	err  error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, key entity.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.err
}

func seedLedger(t *testing.T) (*ledger.Service, *memory.LedgerRepo) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewLedgerRepo()
	svc := ledger.NewService(repo, nil, nil)

	cost := types.MustMoney("5")
	for _, key := range []entity.Key{
		entity.NewKey("S1", "P1"),
		entity.NewKey("S1", "P2"),
		entity.NewKey("S2", "P1"),
	} {
		_, err := svc.Append(ctx, entity.NewMovement{
			StoreID:       key.StoreID,
			ProductID:     key.ProductID,
			Type:          entity.MovementArrival,
			QuantityDelta: types.NewQuantity(10),
			UnitCost:      &cost,
			ReferenceID:   "PO-1",
		})
		require.NoError(t, err)
	}
	return svc, repo
}

func corrupt(t *testing.T, svc *ledger.Service, repo *memory.LedgerRepo, store, product string) {
	t.Helper()
	level, err := svc.CurrentLevel(context.Background(), store, product)
	require.NoError(t, err)
	level.Quantity = types.NewQuantity(42)
	repo.CorruptLevel(level)
}

func TestAuditor_ConsistentLedger(t *testing.T) {
	svc, _ := seedLedger(t)
	auditor := NewAuditor(svc, nil, AuditorConfig{}, logger.NewNop())

	report, err := auditor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Inconsistent)
	assert.Zero(t, report.Rebuilt)
	assert.Zero(t, report.Failed)
}

func TestAuditor_ReportsWithoutRebuild(t *testing.T) {
	svc, repo := seedLedger(t)
	corrupt(t, svc, repo, "S1", "P2")
	inv := &recordingInvalidator{}
	auditor := NewAuditor(svc, inv, AuditorConfig{}, logger.NewNop())

	report, err := auditor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []entity.Key{entity.NewKey("S1", "P2")}, report.Inconsistent)
	assert.Zero(t, report.Rebuilt)
	assert.Empty(t, inv.keys)

	level, err := svc.CurrentLevel(context.Background(), "S1", "P2")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(42), level.Quantity)
}

func TestAuditor_RebuildsAndInvalidatesCheckpoints(t *testing.T) {
	svc, repo := seedLedger(t)
	corrupt(t, svc, repo, "S2", "P1")
	inv := &recordingInvalidator{err: errors.New("redis down")}
	auditor := NewAuditor(svc, inv, AuditorConfig{Rebuild: true, Concurrency: 2}, logger.NewNop())

	report, err := auditor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rebuilt)
	assert.Zero(t, report.Failed, "a checkpoint failure does not fail the position")
	assert.Equal(t, []entity.Key{entity.NewKey("S2", "P1")}, inv.keys)

	level, err := svc.CurrentLevel(context.Background(), "S2", "P1")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), level.Quantity)

	report, err = auditor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Inconsistent)
}

func TestAuditor_StoreFilter(t *testing.T) {
	svc, repo := seedLedger(t)
	corrupt(t, svc, repo, "S2", "P1")
	auditor := NewAuditor(svc, nil, AuditorConfig{StoreID: "S1"}, logger.NewNop())

	report, err := auditor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Empty(t, report.Inconsistent)
}
