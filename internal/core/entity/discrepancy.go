package entity

import "stockledger/internal/core/types"

// Severity grades a count discrepancy. It is policy output, recomputed on demand.
type Severity string

const (
	SeverityNone        Severity = "none"
	SeverityMinor       Severity = "minor"
	SeveritySignificant Severity = "significant"
)

// DiscrepancyRecord compares a physical count with the ledger-derived quantity.
type DiscrepancyRecord struct {
	ProductID           string         `json:"productId"`
	TheoreticalQuantity types.Quantity `json:"theoreticalQuantity"`
	PhysicalQuantity    types.Quantity `json:"physicalQuantity"`
	// DeltaQuantity = physical - theoretical; negative is a shortage.
	DeltaQuantity types.Quantity `json:"deltaQuantity"`
	UnitCost      types.Money    `json:"unitCost"`
	DeltaValue    types.Money    `json:"deltaValue"`
	Severity      Severity       `json:"severity"`
}

// IsShortage reports a negative delta.
func (r DiscrepancyRecord) IsShortage() bool { return r.DeltaQuantity.IsNegative() }

// IsSurplus reports a positive delta.
func (r DiscrepancyRecord) IsSurplus() bool { return r.DeltaQuantity.IsPositive() }
