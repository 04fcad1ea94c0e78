package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/valuation"
)

// ValuationQuery selects the costing method; empty uses the server default.
type ValuationQuery struct {
	Method string `form:"method"`
}

// ValuationResponse is the valuation of one position.
type ValuationResponse struct {
	StoreID           string             `json:"storeId"`
	ProductID         string             `json:"productId"`
	Method            string             `json:"method"`
	Quantity          types.Quantity     `json:"quantity"`
	UnitCost          string             `json:"unitCost"`
	TotalValue        string             `json:"totalValue"`
	UncoveredQuantity types.Quantity     `json:"uncoveredQuantity"`
	Warning           *apperror.AppError `json:"warning,omitempty"`
}

// FromValuation converts a product result.
func (p Presenter) FromValuation(r valuation.Result) ValuationResponse {
	return ValuationResponse{
		StoreID:           r.StoreID,
		ProductID:         r.ProductID,
		Method:            string(r.Method),
		Quantity:          r.Quantity,
		UnitCost:          p.UnitCost(r.UnitCost),
		TotalValue:        p.Money(r.TotalValue),
		UncoveredQuantity: r.UncoveredQuantity,
		Warning:           r.Warning,
	}
}

// BatchValuationResponse is the valuation of a store.
type BatchValuationResponse struct {
	StoreID          string               `json:"storeId"`
	Method           string               `json:"method"`
	TotalValue       string               `json:"totalValue"`
	TotalQuantity    types.Quantity       `json:"totalQuantity"`
	AverageUnitCost  string               `json:"averageUnitCost"`
	ProductBreakdown []ValuationResponse  `json:"productBreakdown"`
	Failures         []*apperror.AppError `json:"failures"`
	Warnings         []*apperror.AppError `json:"warnings"`
	Partial          bool                 `json:"partial"`
	CalculatedAt     time.Time            `json:"calculatedAt"`
}

// FromBatch converts a batch result.
func (p Presenter) FromBatch(storeID string, r valuation.BatchResult) BatchValuationResponse {
	products := make([]ValuationResponse, len(r.Products))
	for i, res := range r.Products {
		products[i] = p.FromValuation(res)
	}

	failures := r.Failures
	if failures == nil {
		failures = []*apperror.AppError{}
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []*apperror.AppError{}
	}

	return BatchValuationResponse{
		StoreID:          storeID,
		Method:           string(r.Method),
		TotalValue:       p.Money(r.TotalValue),
		TotalQuantity:    r.TotalQuantity,
		AverageUnitCost:  p.UnitCost(r.AverageUnitCost),
		ProductBreakdown: products,
		Failures:         failures,
		Warnings:         warnings,
		Partial:          r.Partial,
		CalculatedAt:     r.CalculatedAt,
	}
}
