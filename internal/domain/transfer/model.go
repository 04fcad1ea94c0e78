// Package transfer moves stock between stores in two steps: shipment debits the
// source, reception credits the destination with what physically arrived.
package transfer

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status of a transfer.
type Status string

const (
	StatusCreated               Status = "created"
	StatusInTransit             Status = "in_transit"
	StatusCompleted             Status = "completed"
	StatusCompletedWithVariance Status = "completed_with_variance"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithVariance
}

// canTransition is the state machine.
func (s Status) canTransition(to Status) bool {
	switch s {
	case StatusCreated:
		return to == StatusInTransit
	case StatusInTransit:
		return to == StatusCompleted || to == StatusCompletedWithVariance
	}
	return false
}

// Line is one product of a transfer.
type Line struct {
	ProductID    string         `json:"productId"`
	SentQuantity types.Quantity `json:"sentQuantity"`
	// ReceivedQuantity is nil until reception.
	ReceivedQuantity *types.Quantity `json:"receivedQuantity,omitempty"`
	// Variance = received - sent; negative means stock lost in transit.
	Variance types.Quantity `json:"variance"`
}

// Transfer is a two-sided stock movement between stores.
type Transfer struct {
	ID            id.ID      `json:"id"`
	SourceStoreID string     `json:"sourceStoreId"`
	DestStoreID   string     `json:"destStoreId"`
	Status        Status     `json:"status"`
	Lines         []Line     `json:"lines"`
	ReferenceID   string     `json:"referenceId,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"createdAt"`
	ShippedAt     *time.Time `json:"shippedAt,omitempty"`
	ReceivedAt    *time.Time `json:"receivedAt,omitempty"`
}

// Variances returns the lines whose received quantity differs from the sent one.
func (t *Transfer) Variances() []Line {
	var out []Line
	for _, l := range t.Lines {
		if !l.Variance.IsZero() {
			out = append(out, l)
		}
	}
	return out
}

// TotalSent sums the sent quantities.
func (t *Transfer) TotalSent() types.Quantity {
	var total types.Quantity
	for _, l := range t.Lines {
		total += l.SentQuantity
	}
	return total
}

// LineRequest is one requested product on initiation.
type LineRequest struct {
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// ReceivedLine is one product counted at the destination.
type ReceivedLine struct {
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	StoreID string
	Status  Status
	Limit   int
}

// Repository persists transfers.
type Repository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, transferID id.ID) (*Transfer, error)
	// GetForUpdate locks the transfer for the current transaction.
	GetForUpdate(ctx context.Context, transferID id.ID) (*Transfer, error)
	// Update saves t if its stored version is t.Version-1.
	Update(ctx context.Context, t *Transfer) error
	List(ctx context.Context, filter ListFilter) ([]*Transfer, error)
}
