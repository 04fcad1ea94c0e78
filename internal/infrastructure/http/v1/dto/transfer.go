package dto

import (
	"time"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/transfer"
)

// InitiateTransferRequest is the body of POST /transfers.
type InitiateTransferRequest struct {
	SourceStoreID string                 `json:"sourceStoreId" binding:"required"`
	DestStoreID   string                 `json:"destStoreId" binding:"required"`
	Lines         []transfer.LineRequest `json:"lines" binding:"required,min=1"`
	ReferenceID   string                 `json:"referenceId"`
}

// ReceiveTransferRequest is the body of POST /transfers/:id/receive.
// Products left out are treated as received with zero quantity.
type ReceiveTransferRequest struct {
	Lines []transfer.ReceivedLine `json:"lines"`
}

// TransferListQuery filters GET /transfers.
type TransferListQuery struct {
	StoreID string `form:"storeId"`
	Status  string `form:"status"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// TransferResponse is a transfer with its lines.
type TransferResponse struct {
	ID            string          `json:"id"`
	SourceStoreID string          `json:"sourceStoreId"`
	DestStoreID   string          `json:"destStoreId"`
	Status        string          `json:"status"`
	Lines         []transfer.Line `json:"lines"`
	TotalSent     types.Quantity  `json:"totalSent"`
	HasVariance   bool            `json:"hasVariance"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	ShippedAt     *time.Time      `json:"shippedAt,omitempty"`
	ReceivedAt    *time.Time      `json:"receivedAt,omitempty"`
}

// FromTransfer converts a transfer.
func FromTransfer(t *transfer.Transfer) TransferResponse {
	return TransferResponse{
		ID:            t.ID.String(),
		SourceStoreID: t.SourceStoreID,
		DestStoreID:   t.DestStoreID,
		Status:        string(t.Status),
		Lines:         t.Lines,
		TotalSent:     t.TotalSent(),
		HasVariance:   len(t.Variances()) > 0,
		ReferenceID:   t.ReferenceID,
		Version:       t.Version,
		CreatedAt:     t.CreatedAt,
		ShippedAt:     t.ShippedAt,
		ReceivedAt:    t.ReceivedAt,
	}
}
