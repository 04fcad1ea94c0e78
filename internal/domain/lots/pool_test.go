package lots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

var day0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type history struct {
	seq int64
	out []entity.Movement
}

func (h *history) add(typ entity.MovementType, units int64, cost string, days int) *history {
	h.seq++
	m := entity.Movement{
		ID:            id.New(),
		StoreID:       "S1",
		ProductID:     "P1",
		Sequence:      h.seq,
		Type:          typ,
		QuantityDelta: types.NewQuantity(units),
		RecordedAt:    day0.AddDate(0, 0, days),
	}
	if cost != "" {
		c := types.MustMoney(cost)
		m.UnitCost = &c
	}
	h.out = append(h.out, m)
	return h
}

func TestBuild_ArrivalsOnly(t *testing.T) {
	h := (&history{}).
		add(entity.MovementArrival, 10, "5", 0).
		add(entity.MovementArrival, 10, "8", 31)

	pool := Build(h.out)

	require.Len(t, pool.Lots, 2)
	assert.Equal(t, types.NewQuantity(10), pool.Lots[0].RemainingQuantity)
	assert.True(t, pool.Lots[0].UnitCost.Equal(types.MustMoney("5")))
	assert.Equal(t, types.NewQuantity(20), pool.TotalArrived)
	assert.Equal(t, int64(2), pool.LastSequence)
	assert.Nil(t, pool.Warning())
}

func TestBuild_ExitsConsumeOldestFirst(t *testing.T) {
	h := (&history{}).
		add(entity.MovementArrival, 10, "5", 0).
		add(entity.MovementArrival, 10, "8", 31).
		add(entity.MovementLoss, -4, "", 32).
		add(entity.MovementTransferOut, -8, "", 33).
		add(entity.MovementCountAdjustment, 3, "", 34).
		add(entity.MovementTransferIn, 2, "", 35)

	pool := Build(h.out)

	require.Len(t, pool.Lots, 2)
	assert.Equal(t, types.NewQuantity(0), pool.Lots[0].RemainingQuantity)
	assert.False(t, pool.Lots[0].IsActive())
	assert.Equal(t, types.NewQuantity(8), pool.Lots[1].RemainingQuantity)
	assert.Equal(t, types.NewQuantity(12), pool.TotalExit)
	assert.Len(t, pool.ActiveLots(), 1)
	assert.Equal(t, types.NewQuantity(8), pool.Remaining())
}

func TestBuild_ExitBeforeArrivalIsSettledLater(t *testing.T) {
	h := (&history{}).
		add(entity.MovementCountAdjustment, -3, "", 0).
		add(entity.MovementArrival, 10, "5", 1)

	pool := Build(h.out)

	assert.Equal(t, types.NewQuantity(7), pool.Lots[0].RemainingQuantity)
	assert.Nil(t, pool.Warning())
}

func TestBuild_OverConsumptionWarns(t *testing.T) {
	h := (&history{}).
		add(entity.MovementArrival, 5, "2", 0).
		add(entity.MovementLoss, -8, "", 1)

	pool := Build(h.out)

	assert.Equal(t, types.NewQuantity(0), pool.Lots[0].RemainingQuantity)
	assert.Equal(t, types.NewQuantity(3), pool.Unconsumed)

	w := pool.Warning()
	require.NotNil(t, w)
	assert.Equal(t, apperror.CodeLedgerIntegrity, w.Code)
	assert.Equal(t, "3.0000", w.Details["unconsumed"])
}

func TestBuild_Empty(t *testing.T) {
	pool := Build(nil)
	assert.Empty(t, pool.Lots)
	assert.True(t, pool.Remaining().IsZero())
}

func TestExtend_MatchesFullReplay(t *testing.T) {
	h := &history{}
	for i := 0; i < 30; i++ {
		h.add(entity.MovementArrival, int64(i%4+1), "3.25", i)
		if i%3 == 0 {
			h.add(entity.MovementLoss, -2, "", i)
		}
	}
	h.add(entity.MovementTransferOut, -40, "", 40)

	full := Build(h.out)
	for _, cut := range []int{0, 1, 7, 20, len(h.out)} {
		prefix := Build(h.out[:cut])
		assert.Equal(t, full, prefix.Extend(h.out[cut:]), "cut at %d", cut)
	}
}

func TestExtend_DoesNotMutateReceiver(t *testing.T) {
	h := (&history{}).add(entity.MovementArrival, 10, "5", 0)
	base := Build(h.out)

	h.add(entity.MovementLoss, -10, "", 1)
	_ = base.Extend(h.out[1:])

	assert.Equal(t, types.NewQuantity(10), base.Lots[0].RemainingQuantity)
}
