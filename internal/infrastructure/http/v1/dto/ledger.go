package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
)

// AppendMovementRequest is the body of POST /movements.
type AppendMovementRequest struct {
	StoreID       string         `json:"storeId" binding:"required"`
	ProductID     string         `json:"productId" binding:"required"`
	Type          string         `json:"type" binding:"required"`
	QuantityDelta types.Quantity `json:"quantityDelta"`
	UnitCost      *types.Money   `json:"unitCost"`
	ReferenceID   string         `json:"referenceId"`
	ReferenceType string         `json:"referenceType"`
}

// ToEntity converts the request. Field rules are checked by the ledger.
func (r AppendMovementRequest) ToEntity() entity.NewMovement {
	return entity.NewMovement{
		StoreID:       r.StoreID,
		ProductID:     r.ProductID,
		Type:          entity.MovementType(r.Type),
		QuantityDelta: r.QuantityDelta,
		UnitCost:      r.UnitCost,
		ReferenceID:   r.ReferenceID,
		ReferenceType: r.ReferenceType,
	}
}

// QuantityRequest is the body of reserve, release and loss endpoints.
type QuantityRequest struct {
	Quantity    types.Quantity `json:"quantity"`
	ReferenceID string         `json:"referenceId"`
}

// MovementResponse is a ledger entry.
type MovementResponse struct {
	ID            string         `json:"id"`
	StoreID       string         `json:"storeId"`
	ProductID     string         `json:"productId"`
	Sequence      int64          `json:"sequence"`
	Type          string         `json:"type"`
	QuantityDelta types.Quantity `json:"quantityDelta"`
	UnitCost      *string        `json:"unitCost,omitempty"`
	RecordedAt    time.Time      `json:"recordedAt"`
	ReferenceID   string         `json:"referenceId,omitempty"`
	ReferenceType string         `json:"referenceType,omitempty"`
}

// FromMovement converts a movement.
func (p Presenter) FromMovement(m entity.Movement) MovementResponse {
	resp := MovementResponse{
		ID:            m.ID.String(),
		StoreID:       m.StoreID,
		ProductID:     m.ProductID,
		Sequence:      m.Sequence,
		Type:          string(m.Type),
		QuantityDelta: m.QuantityDelta,
		RecordedAt:    m.RecordedAt,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
	}
	if m.UnitCost != nil {
		cost := p.UnitCost(*m.UnitCost)
		resp.UnitCost = &cost
	}
	return resp
}

// FromMovements converts a slice of movements.
func (p Presenter) FromMovements(ms []entity.Movement) []MovementResponse {
	out := make([]MovementResponse, len(ms))
	for i, m := range ms {
		out[i] = p.FromMovement(m)
	}
	return out
}

// LevelResponse is the cached level of a position.
type LevelResponse struct {
	StoreID           string         `json:"storeId"`
	ProductID         string         `json:"productId"`
	Quantity          types.Quantity `json:"quantity"`
	ReservedQuantity  types.Quantity `json:"reservedQuantity"`
	AvailableQuantity types.Quantity `json:"availableQuantity"`
	Version           int64          `json:"version"`
	LastUpdated       *time.Time     `json:"lastUpdated,omitempty"`
}

// FromLevel converts a level. A position that never moved has no lastUpdated.
func FromLevel(l entity.StockLevel) LevelResponse {
	return LevelResponse{
		StoreID:           l.StoreID,
		ProductID:         l.ProductID,
		Quantity:          l.Quantity,
		ReservedQuantity:  l.ReservedQuantity,
		AvailableQuantity: l.AvailableQuantity(),
		Version:           l.Version,
		LastUpdated:       timePtr(l.LastUpdated),
	}
}

// AuditResponse compares the cached level with a full replay.
type AuditResponse struct {
	Cached     LevelResponse `json:"cached"`
	Replayed   LevelResponse `json:"replayed"`
	Consistent bool          `json:"consistent"`
}
