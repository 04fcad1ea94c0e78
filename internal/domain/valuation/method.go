// Package valuation values stock positions from their cost lots.
package valuation

import (
	"fmt"
	"sort"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// Method is a cost-flow convention.
type Method string

const (
	MethodFIFO            Method = "fifo"
	MethodLIFO            Method = "lifo"
	MethodWeightedAverage Method = "weighted_average"
)

// ParseMethod accepts the canonical names plus "wac" and "average".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo":
		return MethodFIFO, nil
	case "lifo":
		return MethodLIFO, nil
	case "weighted_average", "wac", "average":
		return MethodWeightedAverage, nil
	}
	return "", apperror.NewValidation(fmt.Sprintf("unknown valuation method %q", s)).
		WithDetail("allowed", []Method{MethodFIFO, MethodLIFO, MethodWeightedAverage})
}

// Result is the valuation of one stock position.
type Result struct {
	StoreID    string         `json:"storeId"`
	ProductID  string         `json:"productId"`
	Method     Method         `json:"method"`
	Quantity   types.Quantity `json:"quantity"`
	UnitCost   types.Money    `json:"unitCost"`
	TotalValue types.Money    `json:"totalValue"`
	// UncoveredQuantity is stock with no lot behind it; it is valued at zero.
	UncoveredQuantity types.Quantity     `json:"uncoveredQuantity"`
	Warning           *apperror.AppError `json:"warning,omitempty"`
}

// Valuate values level.Quantity against lots. It is pure: the same inputs
// always produce the same result. Non-positive quantities are valued at zero.
func Valuate(level entity.StockLevel, lots []entity.CostLot, method Method) (Result, error) {
	res := Result{
		StoreID:    level.StoreID,
		ProductID:  level.ProductID,
		Method:     method,
		Quantity:   level.Quantity,
		UnitCost:   types.Zero(),
		TotalValue: types.Zero(),
	}

	active := make([]entity.CostLot, 0, len(lots))
	for _, l := range lots {
		if l.IsActive() {
			active = append(active, l)
		}
	}

	switch method {
	case MethodFIFO:
		sort.SliceStable(active, func(i, j int) bool { return lotOlder(active[i], active[j]) })
		consume(&res, active)
	case MethodLIFO:
		sort.SliceStable(active, func(i, j int) bool { return lotOlder(active[j], active[i]) })
		consume(&res, active)
	case MethodWeightedAverage:
		weightedAverage(&res, active)
	default:
		return Result{}, apperror.NewValidation(fmt.Sprintf("unknown valuation method %q", method))
	}

	if res.UncoveredQuantity.IsPositive() {
		res.Warning = apperror.NewLedgerIntegrityWarning(level.StoreID, level.ProductID, res.UncoveredQuantity.String()).
			WithDetail("reason", "quantity not covered by cost lots")
	}
	return res, nil
}

func lotOlder(a, b entity.CostLot) bool {
	if !a.AcquisitionDate.Equal(b.AcquisitionDate) {
		return a.AcquisitionDate.Before(b.AcquisitionDate)
	}
	return a.OriginSequence < b.OriginSequence
}

// consume walks lots in the given order until res.Quantity is covered.
func consume(res *Result, lots []entity.CostLot) {
	if !res.Quantity.IsPositive() {
		return
	}
	need := res.Quantity
	total := types.Zero()
	for _, l := range lots {
		if need.IsZero() {
			break
		}
		take := types.Min(need, l.RemainingQuantity)
		total = total.Add(take.Decimal().Mul(l.UnitCost))
		need -= take
	}
	res.TotalValue = total
	res.UncoveredQuantity = need
	res.UnitCost = total.Div(res.Quantity.Decimal())
}

func weightedAverage(res *Result, lots []entity.CostLot) {
	var held types.Quantity
	cost := types.Zero()
	for _, l := range lots {
		held += l.RemainingQuantity
		cost = cost.Add(l.RemainingQuantity.Decimal().Mul(l.UnitCost))
	}
	if held.IsZero() {
		if res.Quantity.IsPositive() {
			res.UncoveredQuantity = res.Quantity
		}
		return
	}
	res.UnitCost = cost.Div(held.Decimal())
	if res.Quantity.IsPositive() {
		res.TotalValue = res.Quantity.Decimal().Mul(cost).Div(held.Decimal())
	}
}
