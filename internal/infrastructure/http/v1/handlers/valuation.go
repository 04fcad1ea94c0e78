package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// ValuationHandler values positions and whole stores.
type ValuationHandler struct {
	*BaseHandler
	ledger *ledger.Service
	engine *valuation.Engine
}

// NewValuationHandler creates a valuation handler.
func NewValuationHandler(base *BaseHandler, l *ledger.Service, engine *valuation.Engine) *ValuationHandler {
	return &ValuationHandler{BaseHandler: base, ledger: l, engine: engine}
}

// ValuateProduct handles GET /stores/:store/products/:product/valuation.
func (h *ValuationHandler) ValuateProduct(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	method, err := h.Method(q.Method)
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	level, err := h.ledger.CurrentLevel(ctx, c.Param("store"), c.Param("product"))
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.engine.ValuateProduct(ctx, level, method)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.presenter.FromValuation(res))
}

// ValuateStore handles GET /stores/:store/valuation.
// Lot fetch failures are reported in the body; the request still succeeds.
func (h *ValuationHandler) ValuateStore(c *gin.Context) {
	var q dto.ValuationQuery
	if !h.BindQuery(c, &q) {
		return
	}
	method, err := h.Method(q.Method)
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx := c.Request.Context()
	store := c.Param("store")
	levels, err := h.ledger.ListLevels(ctx, store, true)
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.engine.ValuateBatch(ctx, levels, method)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, h.presenter.FromBatch(store, res))
}
