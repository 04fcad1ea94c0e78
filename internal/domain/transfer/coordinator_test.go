package transfer_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/storage/memory"
)

type fixture struct {
	ledger      *ledger.Service
	coordinator *transfer.Coordinator
	collector   *metrics.InMemory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	collector := metrics.NewInMemory()
	svc := ledger.NewService(memory.NewLedgerRepo(), nil, collector)
	return &fixture{
		ledger:      svc,
		coordinator: transfer.NewCoordinator(memory.NewTransferRepo(), svc, nil, collector),
		collector:   collector,
	}
}

func (f *fixture) stock(t *testing.T, store, product string, units int64) {
	t.Helper()
	cost := types.MustMoney("4")
	_, err := f.ledger.Append(context.Background(), entity.NewMovement{
		StoreID: store, ProductID: product, Type: entity.MovementArrival,
		QuantityDelta: types.NewQuantity(units), UnitCost: &cost,
	})
	require.NoError(t, err)
}

func (f *fixture) quantity(t *testing.T, store, product string) types.Quantity {
	t.Helper()
	level, err := f.ledger.CurrentLevel(context.Background(), store, product)
	require.NoError(t, err)
	return level.Quantity
}

func line(product string, units int64) transfer.LineRequest {
	return transfer.LineRequest{ProductID: product, Quantity: types.NewQuantity(units)}
}

func TestTransfer_FullReception(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)
	f.stock(t, "A", "P2", 4)

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 6), line("P2", 4)}, "TR-1")
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusInTransit, tr.Status)
	assert.NotNil(t, tr.ShippedAt)
	assert.Equal(t, types.NewQuantity(4), f.quantity(t, "A", "P1"))
	assert.True(t, f.quantity(t, "A", "P2").IsZero())

	done, err := f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{
		{ProductID: "P1", Quantity: types.NewQuantity(6)},
		{ProductID: "P2", Quantity: types.NewQuantity(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, done.Status)
	assert.Empty(t, done.Variances())
	assert.Equal(t, types.NewQuantity(6), f.quantity(t, "B", "P1"))

	stored, err := f.coordinator.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Version)

	movements, err := f.ledger.ListMovements(ctx, "B", "P1", ledger.TimeRange{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, entity.MovementTransferIn, movements[0].Type)
	assert.Equal(t, tr.ID.String(), movements[0].ReferenceID)
}

func TestTransfer_ConservationWithVariance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)
	f.stock(t, "A", "P2", 5)

	before := f.quantity(t, "A", "P1") + f.quantity(t, "A", "P2")

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 8), line("P2", 5)}, "")
	require.NoError(t, err)

	// P2 omitted: counts as received zero.
	done, err := f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{
		{ProductID: "P1", Quantity: types.NewQuantity(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompletedWithVariance, done.Status)

	variances := done.Variances()
	require.Len(t, variances, 2)
	var totalVariance types.Quantity
	for _, v := range variances {
		totalVariance += v.Variance
	}
	assert.Equal(t, types.NewQuantity(-6), totalVariance)

	after := f.quantity(t, "A", "P1") + f.quantity(t, "A", "P2") +
		f.quantity(t, "B", "P1") + f.quantity(t, "B", "P2")
	assert.Equal(t, before+totalVariance, after)

	movements, err := f.ledger.ListMovements(ctx, "B", "P2", ledger.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestTransfer_OverReceptionIsVariance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 5)}, "")
	require.NoError(t, err)

	done, err := f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{{ProductID: "P1", Quantity: types.NewQuantity(6)}})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompletedWithVariance, done.Status)
	assert.Equal(t, types.NewQuantity(1), done.Lines[0].Variance)
	assert.Equal(t, types.NewQuantity(6), f.quantity(t, "B", "P1"))
}

func TestTransfer_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)
	f.stock(t, "A", "P2", 1)

	_, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 5), line("P2", 2)}, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock), "got %v", err)

	// Nothing shipped: the batch is all or nothing.
	assert.Equal(t, types.NewQuantity(10), f.quantity(t, "A", "P1"))
	list, err := f.coordinator.List(ctx, transfer.ListFilter{StoreID: "A"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTransfer_ReservedStockIsNotAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)
	_, err := f.ledger.Reserve(ctx, "A", "P1", types.NewQuantity(7))
	require.NoError(t, err)

	_, err = f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 4)}, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestTransfer_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	cases := []struct {
		name   string
		source string
		dest   string
		lines  []transfer.LineRequest
	}{
		{"same store", "A", "A", []transfer.LineRequest{line("P1", 1)}},
		{"no lines", "A", "B", nil},
		{"duplicate product", "A", "B", []transfer.LineRequest{line("P1", 1), line("P1", 2)}},
		{"zero quantity", "A", "B", []transfer.LineRequest{line("P1", 0)}},
		{"missing dest", "A", "", []transfer.LineRequest{line("P1", 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coordinator.Initiate(ctx, tc.source, tc.dest, tc.lines, "")
			assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransfer), "got %v", err)
		})
	}
	assert.Equal(t, types.NewQuantity(10), f.quantity(t, "A", "P1"))
}

func TestTransfer_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 3)}, "")
	require.NoError(t, err)
	_, err = f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{{ProductID: "P1", Quantity: types.NewQuantity(3)}})
	require.NoError(t, err)

	_, err = f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{{ProductID: "P1", Quantity: types.NewQuantity(3)}})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransfer))
	assert.Equal(t, types.NewQuantity(3), f.quantity(t, "B", "P1"))
}

func TestTransfer_ReceiveRejectsUnknownProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 3)}, "")
	require.NoError(t, err)

	_, err = f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{{ProductID: "P9", Quantity: types.NewQuantity(1)}})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidTransfer))

	stored, err := f.coordinator.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusInTransit, stored.Status)
	assert.Nil(t, stored.Lines[0].ReceivedQuantity)
}

func TestTransfer_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.coordinator.Receive(context.Background(), id.New(), nil)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransfer_ConcurrentReceiveAppliesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	tr, err := f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 10)}, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.coordinator.Receive(ctx, tr.ID, []transfer.ReceivedLine{{ProductID: "P1", Quantity: types.NewQuantity(10)}})
		}()
	}
	wg.Wait()

	assert.Equal(t, types.NewQuantity(10), f.quantity(t, "B", "P1"))
	assert.Equal(t, int64(1), f.collector.Snapshot().Count(metrics.EventTransferReceived))
}

func TestTransfer_ConcurrentInitiateNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "A", "P1", 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.coordinator.Initiate(ctx, "A", "B", []transfer.LineRequest{line("P1", 3)}, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, types.NewQuantity(1), f.quantity(t, "A", "P1"))
	assert.Equal(t, int64(3), f.collector.Snapshot().Count(metrics.EventTransferInitiated))
}
