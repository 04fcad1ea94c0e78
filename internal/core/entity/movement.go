// Package entity provides the core data model of the stock ledger.
package entity

import (
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType classifies a ledger entry.
type MovementType string

const (
	// MovementArrival is a supplier reception; the only type that carries a unit cost.
	MovementArrival MovementType = "arrival"
	// MovementTransferOut debits the source store of a transfer.
	MovementTransferOut MovementType = "transfer_out"
	// MovementTransferIn credits the destination store with the received quantity.
	MovementTransferIn MovementType = "transfer_in"
	// MovementLoss records breakage, theft, expiry.
	MovementLoss MovementType = "loss"
	// MovementCountAdjustment absorbs a reconciled physical count discrepancy.
	MovementCountAdjustment MovementType = "count_adjustment"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementArrival, MovementTransferOut, MovementTransferIn, MovementLoss, MovementCountAdjustment:
		return true
	}
	return false
}

// Key identifies one stock position: a product held in a store.
type Key struct {
	StoreID   string `json:"storeId"`
	ProductID string `json:"productId"`
}

// NewKey builds a Key.
func NewKey(storeID, productID string) Key {
	return Key{StoreID: storeID, ProductID: productID}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.StoreID, k.ProductID)
}

// Less orders keys canonically. Multi-key locks are taken in this order.
func (k Key) Less(other Key) bool {
	if k.StoreID != other.StoreID {
		return k.StoreID < other.StoreID
	}
	return k.ProductID < other.ProductID
}

// NewMovement is a movement as submitted by an initiator: id, sequence and
// timestamp are assigned by the ledger.
type NewMovement struct {
	StoreID       string         `json:"storeId"`
	ProductID     string         `json:"productId"`
	Type          MovementType   `json:"type"`
	QuantityDelta types.Quantity `json:"quantityDelta"`
	UnitCost      *types.Money   `json:"unitCost,omitempty"`
	ReferenceID   string         `json:"referenceId"`
	ReferenceType string         `json:"referenceType"`
}

// Key returns the stock position the movement applies to.
func (m NewMovement) Key() Key {
	return NewKey(m.StoreID, m.ProductID)
}

// Movement is an immutable ledger entry. It is never updated or deleted;
// corrections are new compensating movements.
type Movement struct {
	ID            id.ID          `db:"id" json:"id"`
	StoreID       string         `db:"store_id" json:"storeId"`
	ProductID     string         `db:"product_id" json:"productId"`
	Sequence      int64          `db:"sequence" json:"sequence"`
	Type          MovementType   `db:"movement_type" json:"type"`
	QuantityDelta types.Quantity `db:"quantity_delta" json:"quantityDelta"`
	UnitCost      *types.Money   `db:"unit_cost" json:"unitCost,omitempty"`
	RecordedAt    time.Time      `db:"recorded_at" json:"recordedAt"`
	ReferenceID   string         `db:"reference_id" json:"referenceId"`
	ReferenceType string         `db:"reference_type" json:"referenceType"`
}

// Key returns the stock position the movement applies to.
func (m Movement) Key() Key {
	return NewKey(m.StoreID, m.ProductID)
}

// IsExit reports whether the movement removes stock from the lot pool:
// losses, outbound transfers and negative count adjustments.
func (m Movement) IsExit() bool {
	switch m.Type {
	case MovementLoss, MovementTransferOut:
		return true
	case MovementCountAdjustment:
		return m.QuantityDelta.IsNegative()
	}
	return false
}

// StockLevel is the cached aggregate of one stock position.
// It is rebuildable from a full replay and never the source of truth.
type StockLevel struct {
	StoreID          string         `db:"store_id" json:"storeId"`
	ProductID        string         `db:"product_id" json:"productId"`
	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`
	// Version is the sequence of the last applied movement.
	Version     int64     `db:"version" json:"version"`
	LastUpdated time.Time `db:"last_updated" json:"lastUpdated"`
}

// EmptyLevel returns the level of a position that has never moved.
func EmptyLevel(key Key) StockLevel {
	return StockLevel{StoreID: key.StoreID, ProductID: key.ProductID}
}

// Key returns the level's stock position.
func (l StockLevel) Key() Key {
	return NewKey(l.StoreID, l.ProductID)
}

// AvailableQuantity is quantity not held by reservations.
func (l StockLevel) AvailableQuantity() types.Quantity {
	return l.Quantity - l.ReservedQuantity
}

// Apply folds a movement into the level.
func (l StockLevel) Apply(m Movement) StockLevel {
	l.Quantity += m.QuantityDelta
	l.Version = m.Sequence
	l.LastUpdated = m.RecordedAt
	return l
}

// CostLot is a batch of stock acquired at one time and unit cost.
// Lots are derived from the ledger and never persisted on their own.
type CostLot struct {
	OriginMovementID  id.ID          `json:"originMovementId"`
	OriginSequence    int64          `json:"originSequence"`
	AcquisitionDate   time.Time      `json:"acquisitionDate"`
	UnitCost          types.Money    `json:"unitCost"`
	OriginalQuantity  types.Quantity `json:"originalQuantity"`
	RemainingQuantity types.Quantity `json:"remainingQuantity"`
}

// IsActive reports whether the lot still holds stock.
func (l CostLot) IsActive() bool {
	return l.RemainingQuantity.IsPositive()
}
