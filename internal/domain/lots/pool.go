// Package lots derives open cost lots of a stock position from its movement history.
package lots

import (
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// Pool is the lot state of one position after replaying movements up to LastSequence.
//
// Exits are not attributed to lots one by one. They are summed into TotalExit and
// consumed from the oldest lot first, whatever valuation method is applied later.
type Pool struct {
	StoreID   string `json:"storeId"`
	ProductID string `json:"productId"`

	// Lots holds every lot, inactive ones included, ordered by acquisition date then sequence.
	Lots []entity.CostLot `json:"lots"`

	TotalArrived types.Quantity `json:"totalArrived"`
	TotalExit    types.Quantity `json:"totalExit"`
	// Unconsumed is exit quantity not covered by any arrival.
	Unconsumed types.Quantity `json:"unconsumed"`

	LastSequence int64 `json:"lastSequence"`
}

// NewPool returns the pool of a position with no history.
func NewPool(key entity.Key) Pool {
	return Pool{StoreID: key.StoreID, ProductID: key.ProductID}
}

// Build replays movements of one position from scratch.
func Build(movements []entity.Movement) Pool {
	return Pool{}.Extend(movements)
}

// Key returns the position of the pool.
func (p Pool) Key() entity.Key {
	return entity.NewKey(p.StoreID, p.ProductID)
}

// Extend returns a new pool with movements applied on top of p. The receiver is not modified.
func (p Pool) Extend(movements []entity.Movement) Pool {
	out := p
	if out.StoreID == "" && out.ProductID == "" && len(movements) > 0 {
		out.StoreID, out.ProductID = movements[0].StoreID, movements[0].ProductID
	}
	out.Lots = make([]entity.CostLot, len(p.Lots), len(p.Lots)+len(movements))
	copy(out.Lots, p.Lots)

	for _, m := range movements {
		out.add(m)
	}
	out.settle()
	return out
}

func (p *Pool) add(m entity.Movement) {
	if m.Sequence > p.LastSequence {
		p.LastSequence = m.Sequence
	}

	switch {
	case m.Type == entity.MovementArrival:
		if m.UnitCost == nil || !m.QuantityDelta.IsPositive() {
			return
		}
		lot := entity.CostLot{
			OriginMovementID:  m.ID,
			OriginSequence:    m.Sequence,
			AcquisitionDate:   m.RecordedAt,
			UnitCost:          *m.UnitCost,
			OriginalQuantity:  m.QuantityDelta,
			RemainingQuantity: m.QuantityDelta,
		}
		i := sort.Search(len(p.Lots), func(i int) bool { return lotBefore(lot, p.Lots[i]) })
		p.Lots = append(p.Lots, entity.CostLot{})
		copy(p.Lots[i+1:], p.Lots[i:])
		p.Lots[i] = lot
		p.TotalArrived += m.QuantityDelta

	case m.IsExit():
		p.TotalExit += m.QuantityDelta.Abs()
	}
}

// settle distributes TotalExit over lots, oldest first.
func (p *Pool) settle() {
	left := p.TotalExit
	for i := range p.Lots {
		take := types.Min(left, p.Lots[i].OriginalQuantity)
		p.Lots[i].RemainingQuantity = p.Lots[i].OriginalQuantity - take
		left -= take
	}
	p.Unconsumed = left
}

func lotBefore(a, b entity.CostLot) bool {
	if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
		return a.AcquisitionDate.Before(b.AcquisitionDate)
	}
	return a.OriginSequence < b.OriginSequence
}

// ActiveLots returns lots with remaining quantity, oldest first.
func (p Pool) ActiveLots() []entity.CostLot {
	out := make([]entity.CostLot, 0, len(p.Lots))
	for _, l := range p.Lots {
		if l.IsActive() {
			out = append(out, l)
		}
	}
	return out
}

// Remaining is the quantity still held by lots.
func (p Pool) Remaining() types.Quantity {
	return p.TotalArrived - p.TotalExit + p.Unconsumed
}

// Warning reports exits beyond recorded arrivals, nil when the ledger is consistent.
func (p Pool) Warning() *apperror.AppError {
	if !p.Unconsumed.IsPositive() {
		return nil
	}
	return apperror.NewLedgerIntegrityWarning(p.StoreID, p.ProductID, p.Unconsumed.String())
}
