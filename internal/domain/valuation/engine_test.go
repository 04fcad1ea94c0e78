package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/lots"
)

type fakeProvider struct {
	mu       sync.Mutex
	fail     map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	onFetch  func(productID string)
}

func (p *fakeProvider) BuildLots(ctx context.Context, storeID, productID string) (lots.Pool, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.peak.Load()
		if n <= cur || p.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	if p.onFetch != nil {
		p.onFetch(productID)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return lots.Pool{}, ctx.Err()
		}
	}

	p.mu.Lock()
	failing := p.fail[productID]
	p.mu.Unlock()
	if failing {
		return lots.Pool{}, errors.New("storage timeout")
	}

	pool := lots.NewPool(entity.NewKey(storeID, productID))
	pool.Lots = twoLots()
	pool.TotalArrived = types.NewQuantity(20)
	return pool, nil
}

func levels(n int) []entity.StockLevel {
	out := make([]entity.StockLevel, n)
	for i := range out {
		out[i] = entity.StockLevel{
			StoreID:   "S1",
			ProductID: fmt.Sprintf("P%02d", i),
			Quantity:  types.NewQuantity(15),
		}
	}
	return out
}

func TestValuateBatch_PartialFailure(t *testing.T) {
	provider := &fakeProvider{fail: map[string]bool{"P03": true}}
	collector := metrics.NewInMemory()
	engine := NewEngine(provider, Config{}, collector)

	res, err := engine.ValuateBatch(context.Background(), levels(5), MethodFIFO)
	require.NoError(t, err)

	assert.Len(t, res.Products, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, apperror.CodeLotFetchFailure, res.Failures[0].Code)
	assert.Equal(t, "P03", res.Failures[0].Details["product_id"])
	assert.False(t, res.Partial)

	assertMoney(t, "360", res.TotalValue)
	assert.Equal(t, types.NewQuantity(60), res.TotalQuantity)
	assertMoney(t, "6", res.AverageUnitCost)
	for _, p := range res.Products {
		assert.NotEqual(t, "P03", p.ProductID)
	}

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Count(metrics.EventLotFetchFailure))
	assert.Equal(t, int64(4), snap.Count(metrics.EventValuation))
	assert.Equal(t, int64(1), snap.Count(metrics.EventBatchValuation))
}

func TestValuateBatch_BoundedConcurrency(t *testing.T) {
	provider := &fakeProvider{delay: 5 * time.Millisecond}
	engine := NewEngine(provider, Config{BatchSize: 3}, nil)

	res, err := engine.ValuateBatch(context.Background(), levels(10), MethodLIFO)
	require.NoError(t, err)

	assert.Len(t, res.Products, 10)
	assert.LessOrEqual(t, provider.peak.Load(), int32(3))
	assertMoney(t, "1050", res.TotalValue)
	// Results keep input order.
	assert.Equal(t, "P00", res.Products[0].ProductID)
	assert.Equal(t, "P09", res.Products[9].ProductID)
}

func TestValuateBatch_CancelledBetweenGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeProvider{}
	provider.onFetch = func(productID string) {
		if productID == "P01" {
			cancel()
		}
	}
	engine := NewEngine(provider, Config{BatchSize: 2}, nil)

	res, err := engine.ValuateBatch(ctx, levels(6), MethodFIFO)
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Len(t, res.Products, 2)
	assert.Empty(t, res.Failures)
}

func TestValuateBatch_FetchTimeout(t *testing.T) {
	provider := &fakeProvider{delay: 200 * time.Millisecond}
	engine := NewEngine(provider, Config{LotFetchTimeout: 10 * time.Millisecond}, nil)

	res, err := engine.ValuateBatch(context.Background(), levels(2), MethodFIFO)
	require.NoError(t, err)

	assert.Empty(t, res.Products)
	assert.Len(t, res.Failures, 2)
	assert.False(t, res.Partial)
}

func TestValuateBatch_Empty(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, Config{}, nil)
	res, err := engine.ValuateBatch(context.Background(), nil, MethodWeightedAverage)
	require.NoError(t, err)
	assert.True(t, res.TotalValue.IsZero())
	assert.True(t, res.AverageUnitCost.IsZero())
	assert.False(t, res.Partial)
}

func TestValuateBatch_UnknownMethod(t *testing.T) {
	engine := NewEngine(&fakeProvider{}, Config{}, nil)
	_, err := engine.ValuateBatch(context.Background(), levels(1), "hifo")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestValuateProduct_CarriesPoolWarning(t *testing.T) {
	provider := &warningProvider{}
	engine := NewEngine(provider, Config{}, nil)

	res, err := engine.ValuateProduct(context.Background(), level(0), MethodFIFO)
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, apperror.CodeLedgerIntegrity, res.Warning.Code)
}

type warningProvider struct{}

func (warningProvider) BuildLots(_ context.Context, storeID, productID string) (lots.Pool, error) {
	pool := lots.NewPool(entity.NewKey(storeID, productID))
	pool.TotalExit = types.NewQuantity(3)
	pool.Unconsumed = types.NewQuantity(3)
	return pool, nil
}
