// Package dto provides the request and response bodies of the HTTP API.
package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Presenter rounds monetary values for display. Domain values keep full
// precision; rounding happens here and nowhere else.
type Presenter struct {
	CurrencyDecimals int32
}

// DefaultPresenter rounds to cents.
func DefaultPresenter() Presenter {
	return Presenter{CurrencyDecimals: 2}
}

// Money renders m rounded half away from zero.
func (p Presenter) Money(m types.Money) string {
	return types.RoundForDisplay(m, p.CurrencyDecimals).StringFixed(p.CurrencyDecimals)
}

// Minor renders m in the smallest currency unit.
func (p Presenter) Minor(m types.Money) int64 {
	return int64(types.ToMinorUnits(m, p.CurrencyDecimals))
}

// UnitCost renders a unit cost. Unit costs keep four decimals so that
// quantity x unit cost can be recomputed by clients.
func (p Presenter) UnitCost(m types.Money) string {
	return m.Round(4).String()
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse creates a ListResponse. A nil slice renders as [].
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// ErrorResponse documents the error body written by middleware.ErrorHandler.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
