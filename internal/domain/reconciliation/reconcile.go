package reconciliation

import (
	"github.com/shopspring/decimal"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// Reconcile compares a physical count with the theoretical quantity.
// Severity is none for a zero delta; otherwise policy decides between minor and significant.
func Reconcile(productID string, theoretical, physical types.Quantity, unitCost types.Money, policy Policy) (entity.DiscrepancyRecord, error) {
	delta := physical - theoretical
	rec := entity.DiscrepancyRecord{
		ProductID:           productID,
		TheoreticalQuantity: theoretical,
		PhysicalQuantity:    physical,
		DeltaQuantity:       delta,
		UnitCost:            unitCost,
		DeltaValue:          delta.Decimal().Mul(unitCost),
		Severity:            entity.SeverityNone,
	}
	if delta.IsZero() {
		return rec, nil
	}

	if policy == nil {
		policy = DefaultThresholds()
	}
	significant, err := policy.Significant(Facts{
		TheoreticalQuantity: theoretical,
		PhysicalQuantity:    physical,
		DeltaQuantity:       delta,
		DeltaValue:          rec.DeltaValue,
		Ratio:               ratio(delta, theoretical),
	})
	if err != nil {
		return entity.DiscrepancyRecord{}, err
	}

	rec.Severity = entity.SeverityMinor
	if significant {
		rec.Severity = entity.SeveritySignificant
	}
	return rec, nil
}

// ratio is |delta| / max(theoretical, 1 unit).
func ratio(delta, theoretical types.Quantity) decimal.Decimal {
	base := types.Max(theoretical, types.NewQuantity(1))
	return delta.Abs().Decimal().Div(base.Decimal())
}
