package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// LedgerHandler serves movements and stock levels.
type LedgerHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(base *BaseHandler, service *ledger.Service) *LedgerHandler {
	return &LedgerHandler{BaseHandler: base, service: service}
}

// AppendMovement handles POST /movements.
func (h *LedgerHandler) AppendMovement(c *gin.Context) {
	var req dto.AppendMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := h.service.Append(c.Request.Context(), req.ToEntity())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, h.presenter.FromMovement(m))
}

// ListMovements handles GET /stores/:store/products/:product/movements.
func (h *LedgerHandler) ListMovements(c *gin.Context) {
	r, ok := h.ParseTimeRange(c)
	if !ok {
		return
	}

	movements, err := h.service.ListMovements(c.Request.Context(), c.Param("store"), c.Param("product"), r)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(h.presenter.FromMovements(movements)))
}

// GetLevel handles GET /stores/:store/products/:product/level.
func (h *LedgerHandler) GetLevel(c *gin.Context) {
	level, err := h.service.CurrentLevel(c.Request.Context(), c.Param("store"), c.Param("product"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLevel(level))
}

// ListLevels handles GET /stores/:store/levels. Zero positions are skipped unless excludeZero=false.
func (h *LedgerHandler) ListLevels(c *gin.Context) {
	levels, err := h.service.ListLevels(c.Request.Context(), c.Param("store"), h.ParseBoolQuery(c, "excludeZero", true))
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.LevelResponse, len(levels))
	for i, l := range levels {
		out[i] = dto.FromLevel(l)
	}
	h.OK(c, dto.NewListResponse(out))
}

// AuditLevel handles GET /stores/:store/products/:product/level/audit.
func (h *LedgerHandler) AuditLevel(c *gin.Context) {
	res, err := h.service.Audit(c.Request.Context(), c.Param("store"), c.Param("product"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AuditResponse{
		Cached:     dto.FromLevel(res.Cached),
		Replayed:   dto.FromLevel(res.Replayed),
		Consistent: res.Consistent,
	})
}

// RebuildLevel handles POST /stores/:store/products/:product/level/rebuild.
func (h *LedgerHandler) RebuildLevel(c *gin.Context) {
	level, err := h.service.Rebuild(c.Request.Context(), c.Param("store"), c.Param("product"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLevel(level))
}

// Reserve handles POST /stores/:store/products/:product/reserve.
func (h *LedgerHandler) Reserve(c *gin.Context) {
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	level, err := h.service.Reserve(c.Request.Context(), c.Param("store"), c.Param("product"), req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLevel(level))
}

// Release handles POST /stores/:store/products/:product/release.
func (h *LedgerHandler) Release(c *gin.Context) {
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	level, err := h.service.Release(c.Request.Context(), c.Param("store"), c.Param("product"), req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromLevel(level))
}

// RecordLoss handles POST /stores/:store/products/:product/losses.
func (h *LedgerHandler) RecordLoss(c *gin.Context) {
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := h.service.RecordLoss(c.Request.Context(), c.Param("store"), c.Param("product"), req.Quantity, req.ReferenceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, h.presenter.FromMovement(m))
}
