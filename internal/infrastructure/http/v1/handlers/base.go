// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct {
	presenter     dto.Presenter
	defaultMethod valuation.Method
}

// NewBaseHandler creates a base handler. Empty method falls back to FIFO.
func NewBaseHandler(presenter dto.Presenter, defaultMethod valuation.Method) *BaseHandler {
	if defaultMethod == "" {
		defaultMethod = valuation.MethodFIFO
	}
	return &BaseHandler{presenter: presenter, defaultMethod: defaultMethod}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the gin context and aborts.
// The response body is written by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Method resolves the method query parameter, falling back to the default.
func (h *BaseHandler) Method(raw string) (valuation.Method, error) {
	if raw == "" {
		return h.defaultMethod, nil
	}
	return valuation.ParseMethod(raw)
}

// ParseID parses the :id path parameter.
func (h *BaseHandler) ParseID(c *gin.Context) (id.ID, bool) {
	parsed, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("id", c.Param("id")))
		return id.ID{}, false
	}
	return parsed, true
}

// ParseTimeRange reads optional RFC 3339 from/to query parameters.
func (h *BaseHandler) ParseTimeRange(c *gin.Context) (ledger.TimeRange, bool) {
	var r ledger.TimeRange
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &r.From}, {"to", &r.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid "+p.name+" timestamp").WithDetail(p.name, raw))
			return ledger.TimeRange{}, false
		}
		*p.dst = &t
	}
	return r, true
}

// ParseBoolQuery parses a boolean query parameter with default value.
func (h *BaseHandler) ParseBoolQuery(c *gin.Context, key string, defaultVal bool) bool {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
