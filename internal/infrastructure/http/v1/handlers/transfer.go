package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/transfer"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// TransferHandler drives inter-store transfers.
type TransferHandler struct {
	*BaseHandler
	coordinator *transfer.Coordinator
}

// NewTransferHandler creates a transfer handler.
func NewTransferHandler(base *BaseHandler, coordinator *transfer.Coordinator) *TransferHandler {
	return &TransferHandler{BaseHandler: base, coordinator: coordinator}
}

// Initiate handles POST /transfers.
func (h *TransferHandler) Initiate(c *gin.Context) {
	var req dto.InitiateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t, err := h.coordinator.Initiate(c.Request.Context(), req.SourceStoreID, req.DestStoreID, req.Lines, req.ReferenceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromTransfer(t))
}

// Get handles GET /transfers/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.ParseID(c)
	if !ok {
		return
	}

	t, err := h.coordinator.Get(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTransfer(t))
}

// List handles GET /transfers.
func (h *TransferHandler) List(c *gin.Context) {
	var q dto.TransferListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	transfers, err := h.coordinator.List(c.Request.Context(), transfer.ListFilter{
		StoreID: q.StoreID,
		Status:  transfer.Status(q.Status),
		Limit:   q.Limit,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.TransferResponse, len(transfers))
	for i, t := range transfers {
		out[i] = dto.FromTransfer(t)
	}
	h.OK(c, dto.NewListResponse(out))
}

// Receive handles POST /transfers/:id/receive.
func (h *TransferHandler) Receive(c *gin.Context) {
	transferID, ok := h.ParseID(c)
	if !ok {
		return
	}

	var req dto.ReceiveTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t, err := h.coordinator.Receive(c.Request.Context(), transferID, req.Lines)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromTransfer(t))
}
