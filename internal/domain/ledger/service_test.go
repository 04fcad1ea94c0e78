package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/memory"
)

func newService(t *testing.T) (*ledger.Service, *memory.LedgerRepo, *metrics.InMemory) {
	t.Helper()
	repo := memory.NewLedgerRepo()
	collector := metrics.NewInMemory()
	return ledger.NewService(repo, nil, collector), repo, collector
}

func arrival(store, product string, units int64, cost string) entity.NewMovement {
	c := types.MustMoney(cost)
	return entity.NewMovement{
		StoreID:       store,
		ProductID:     product,
		Type:          entity.MovementArrival,
		QuantityDelta: types.NewQuantity(units),
		UnitCost:      &c,
		ReferenceID:   "PO-1",
		ReferenceType: "purchase_order",
	}
}

func TestAppend_AssignsSequenceAndUpdatesLevel(t *testing.T) {
	ctx := context.Background()
	svc, _, collector := newService(t)

	m1, err := svc.Append(ctx, arrival("S1", "P1", 100, "5"))
	require.NoError(t, err)
	m2, err := svc.Append(ctx, entity.NewMovement{
		StoreID: "S1", ProductID: "P1", Type: entity.MovementLoss, QuantityDelta: types.NewQuantity(-30),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), m1.Sequence)
	assert.Equal(t, int64(2), m2.Sequence)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.False(t, m2.RecordedAt.Before(m1.RecordedAt))

	level, err := svc.CurrentLevel(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(70), level.Quantity)
	assert.Equal(t, int64(2), level.Version)
	assert.Equal(t, int64(2), collector.Snapshot().Count(metrics.EventMovementAppended))
}

func TestAppend_RejectsInvalidMovement(t *testing.T) {
	ctx := context.Background()
	svc, _, collector := newService(t)

	cases := map[string]entity.NewMovement{
		"zero delta":          {StoreID: "S1", ProductID: "P1", Type: entity.MovementLoss},
		"missing store":       {ProductID: "P1", Type: entity.MovementLoss, QuantityDelta: types.NewQuantity(-1)},
		"unknown type":        {StoreID: "S1", ProductID: "P1", Type: "gift", QuantityDelta: types.NewQuantity(1)},
		"arrival no cost":     {StoreID: "S1", ProductID: "P1", Type: entity.MovementArrival, QuantityDelta: types.NewQuantity(1)},
		"positive loss":       {StoreID: "S1", ProductID: "P1", Type: entity.MovementLoss, QuantityDelta: types.NewQuantity(1)},
		"negative transferin": {StoreID: "S1", ProductID: "P1", Type: entity.MovementTransferIn, QuantityDelta: types.NewQuantity(-1)},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Append(ctx, m)
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidMovement), "got %v", err)
		})
	}

	level, err := svc.CurrentLevel(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.True(t, level.Quantity.IsZero())
	assert.Equal(t, int64(len(cases)), collector.Snapshot().Count(metrics.EventMovementRejected))
}

func TestAppend_AllowsNegativeWithoutGuard(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Append(ctx, entity.NewMovement{
		StoreID: "S1", ProductID: "P1", Type: entity.MovementLoss, QuantityDelta: types.NewQuantity(-3),
	})
	require.NoError(t, err)

	level, err := svc.CurrentLevel(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(-3), level.Quantity)
}

func TestAppend_RecordedAtIsMonotonic(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	svc.WithClock(func() time.Time { return clock })

	first, err := svc.Append(ctx, arrival("S1", "P1", 1, "1"))
	require.NoError(t, err)

	clock = base.Add(-time.Hour)
	second, err := svc.Append(ctx, arrival("S1", "P1", 1, "1"))
	require.NoError(t, err)

	assert.Equal(t, first.RecordedAt, second.RecordedAt)
}

func TestAppendBatch_GuardAbortsAtomically(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Append(ctx, arrival("A", "P1", 10, "2"))
	require.NoError(t, err)

	key := entity.NewKey("A", "P1")
	_, err = svc.AppendBatch(ctx, []entity.NewMovement{
		{StoreID: "A", ProductID: "P1", Type: entity.MovementTransferOut, QuantityDelta: types.NewQuantity(-20)},
	}, ledger.RequireAvailable(map[entity.Key]types.Quantity{key: types.NewQuantity(20)}))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	movements, err := svc.ListMovements(ctx, "A", "P1", ledger.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestRecordLoss_ConcurrentExitsNeverOversell(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	_, err := svc.Append(ctx, arrival("S1", "P1", 10, "1"))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.RecordLoss(ctx, "S1", "P1", types.NewQuantity(1), "loss"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	level, err := svc.CurrentLevel(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.True(t, level.Quantity.IsZero())

	movements, err := svc.ListMovements(ctx, "S1", "P1", ledger.TimeRange{})
	require.NoError(t, err)
	for i, m := range movements {
		assert.Equal(t, int64(i+1), m.Sequence)
	}
}

func TestReserveRelease(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, err := svc.Append(ctx, arrival("S1", "P1", 10, "1"))
	require.NoError(t, err)

	level, err := svc.Reserve(ctx, "S1", "P1", types.NewQuantity(8))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(2), level.AvailableQuantity())

	_, err = svc.RecordLoss(ctx, "S1", "P1", types.NewQuantity(3), "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, err = svc.Reserve(ctx, "S1", "P1", types.NewQuantity(3))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	_, err = svc.Release(ctx, "S1", "P1", types.NewQuantity(9))
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	level, err = svc.Release(ctx, "S1", "P1", types.NewQuantity(8))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), level.AvailableQuantity())
}

func TestAuditAndRebuild(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newService(t)

	_, err := svc.Append(ctx, arrival("S1", "P1", 10, "1"))
	require.NoError(t, err)
	_, err = svc.Append(ctx, arrival("S1", "P1", 5, "1"))
	require.NoError(t, err)

	result, err := svc.Audit(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.True(t, result.Consistent)

	broken := result.Cached
	broken.Quantity = types.NewQuantity(99)
	repo.CorruptLevel(broken)

	result, err = svc.Audit(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.False(t, result.Consistent)
	assert.Equal(t, types.NewQuantity(15), result.Replayed.Quantity)

	level, err := svc.Rebuild(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(15), level.Quantity)

	result, err = svc.Audit(ctx, "S1", "P1")
	require.NoError(t, err)
	assert.True(t, result.Consistent)
}

func TestListMovements_TimeRange(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 24 * time.Hour)
		svc.WithClock(func() time.Time { return at })
		_, err := svc.Append(ctx, arrival("S1", "P1", 1, "1"))
		require.NoError(t, err)
	}

	from := base.Add(12 * time.Hour)
	got, err := svc.ListMovements(ctx, "S1", "P1", ledger.TimeRange{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].Sequence)

	to := base
	_, err = svc.ListMovements(ctx, "S1", "P1", ledger.TimeRange{From: &from, To: &to})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	after, err := svc.MovementsAfter(ctx, entity.NewKey("S1", "P1"), 2)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, int64(3), after[0].Sequence)
}

func TestLockAll_CancelledContext(t *testing.T) {
	svc, _, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Append(ctx, arrival("S1", "P1", 1, "1"))
	assert.ErrorIs(t, err, context.Canceled)
}
