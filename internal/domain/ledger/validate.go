package ledger

import (
	"fmt"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
)

// ValidateMovement checks a movement before it reaches the ledger.
// It covers shape only; stock sufficiency belongs to the initiator.
func ValidateMovement(m entity.NewMovement) error {
	if strings.TrimSpace(m.StoreID) == "" {
		return apperror.NewInvalidMovement("store id is required").WithDetail("field", "storeId")
	}
	if strings.TrimSpace(m.ProductID) == "" {
		return apperror.NewInvalidMovement("product id is required").WithDetail("field", "productId")
	}
	if !m.Type.IsValid() {
		return apperror.NewInvalidMovement(fmt.Sprintf("unknown movement type %q", m.Type)).
			WithDetail("field", "type")
	}
	if m.QuantityDelta.IsZero() {
		return apperror.NewInvalidMovement("quantity delta must be non-zero").
			WithDetail("field", "quantityDelta")
	}

	switch m.Type {
	case entity.MovementArrival:
		if m.UnitCost == nil {
			return apperror.NewInvalidMovement("arrival requires a unit cost").WithDetail("field", "unitCost")
		}
		if m.UnitCost.IsNegative() {
			return apperror.NewInvalidMovement("unit cost must be >= 0").WithDetail("field", "unitCost")
		}
	default:
		if m.UnitCost != nil {
			return apperror.NewInvalidMovement(fmt.Sprintf("%s must not carry a unit cost", m.Type)).
				WithDetail("field", "unitCost")
		}
	}

	switch m.Type {
	case entity.MovementArrival, entity.MovementTransferIn:
		if !m.QuantityDelta.IsPositive() {
			return apperror.NewInvalidMovement(fmt.Sprintf("%s must increase stock", m.Type)).
				WithDetail("field", "quantityDelta")
		}
	case entity.MovementLoss, entity.MovementTransferOut:
		if !m.QuantityDelta.IsNegative() {
			return apperror.NewInvalidMovement(fmt.Sprintf("%s must decrease stock", m.Type)).
				WithDetail("field", "quantityDelta")
		}
	}

	return nil
}
