package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ReconciliationHandler compares physical counts with the ledger.
type ReconciliationHandler struct {
	*BaseHandler
	engine *reconciliation.Engine
}

// NewReconciliationHandler creates a reconciliation handler.
func NewReconciliationHandler(base *BaseHandler, engine *reconciliation.Engine) *ReconciliationHandler {
	return &ReconciliationHandler{BaseHandler: base, engine: engine}
}

// Reconcile handles POST /reconciliations: a stateless comparison of two quantities.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	var req dto.ReconcileRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rec, err := h.engine.Reconcile(req.ProductID, req.TheoreticalQuantity, req.PhysicalQuantity, req.UnitCost)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.presenter.FromDiscrepancy(rec))
}

// ReconcileCount handles POST /stores/:store/counts.
func (h *ReconciliationHandler) ReconcileCount(c *gin.Context) {
	var req dto.CountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	method, err := h.Method(req.Method)
	if err != nil {
		h.Error(c, err)
		return
	}

	report, err := h.engine.ReconcileCount(c.Request.Context(), c.Param("store"), req.Lines, method)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.presenter.FromCountReport(report))
}

// AcceptCount handles POST /stores/:store/counts/accept.
func (h *ReconciliationHandler) AcceptCount(c *gin.Context) {
	var req dto.AcceptCountRequest
	if !h.BindJSON(c, &req) {
		return
	}

	movements, err := h.engine.AcceptCount(c.Request.Context(), c.Param("store"), req.Records, req.ReferenceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.NewListResponse(h.presenter.FromMovements(movements)))
}
