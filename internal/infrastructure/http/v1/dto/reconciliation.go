package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/reconciliation"
)

// ReconcileRequest is the body of POST /reconciliations.
type ReconcileRequest struct {
	ProductID           string         `json:"productId" binding:"required"`
	TheoreticalQuantity types.Quantity `json:"theoreticalQuantity"`
	PhysicalQuantity    types.Quantity `json:"physicalQuantity"`
	UnitCost            types.Money    `json:"unitCost"`
}

// CountRequest is the body of POST /stores/:store/counts.
type CountRequest struct {
	Method string                     `json:"method"`
	Lines  []reconciliation.CountLine `json:"lines" binding:"required,min=1"`
}

// AcceptCountRequest is the body of POST /stores/:store/counts/accept.
type AcceptCountRequest struct {
	ReferenceID string                     `json:"referenceId" binding:"required"`
	Records     []entity.DiscrepancyRecord `json:"records" binding:"required,min=1"`
}

// DiscrepancyResponse is one reconciled product. The raw record is
// included so clients can submit it back for acceptance unchanged.
type DiscrepancyResponse struct {
	entity.DiscrepancyRecord
	DeltaValueDisplay string `json:"deltaValueDisplay"`
	DeltaValueMinor   int64  `json:"deltaValueMinor"`
}

// FromDiscrepancy converts a record.
func (p Presenter) FromDiscrepancy(r entity.DiscrepancyRecord) DiscrepancyResponse {
	return DiscrepancyResponse{
		DiscrepancyRecord: r,
		DeltaValueDisplay: p.Money(r.DeltaValue),
		DeltaValueMinor:   p.Minor(r.DeltaValue),
	}
}

// CountReportResponse is a reconciled physical count.
type CountReportResponse struct {
	StoreID          string                `json:"storeId"`
	Method           string                `json:"method"`
	Records          []DiscrepancyResponse `json:"records"`
	SurplusQuantity  types.Quantity        `json:"surplusQuantity"`
	ShortageQuantity types.Quantity        `json:"shortageQuantity"`
	SurplusValue     string                `json:"surplusValue"`
	ShortageValue    string                `json:"shortageValue"`
	SignificantCount int                   `json:"significantCount"`
	CountedAt        time.Time             `json:"countedAt"`
}

// FromCountReport converts a count report.
func (p Presenter) FromCountReport(r reconciliation.CountReport) CountReportResponse {
	records := make([]DiscrepancyResponse, len(r.Records))
	for i, rec := range r.Records {
		records[i] = p.FromDiscrepancy(rec)
	}
	return CountReportResponse{
		StoreID:          r.StoreID,
		Method:           string(r.Method),
		Records:          records,
		SurplusQuantity:  r.SurplusQuantity,
		ShortageQuantity: r.ShortageQuantity,
		SurplusValue:     p.Money(r.SurplusValue),
		ShortageValue:    p.Money(r.ShortageValue),
		SignificantCount: r.Significant,
		CountedAt:        r.CountedAt,
	}
}
