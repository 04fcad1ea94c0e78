// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/metrics"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/reconciliation"
	"stockledger/internal/domain/transfer"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services exposed over HTTP.
type RouterConfig struct {
	Logger *logger.Logger

	Ledger         *ledger.Service
	Valuation      *valuation.Engine
	Reconciliation *reconciliation.Engine
	Transfers      *transfer.Coordinator

	Metrics      metrics.Collector
	HealthChecks map[string]handlers.Pinger

	// DefaultMethod is used when a request does not name a valuation method.
	DefaultMethod valuation.Method
	// CurrencyDecimals controls rounding of monetary values in responses.
	CurrencyDecimals int32
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// ErrorHandler wraps Recovery so a recovered panic is still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.HealthChecks, cfg.Metrics)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	router.GET("/metrics", healthHandler.Metrics)

	base := handlers.NewBaseHandler(dto.Presenter{CurrencyDecimals: cfg.CurrencyDecimals}, cfg.DefaultMethod)

	v1 := router.Group("/api/v1")
	{
		registerLedgerRoutes(v1, base, cfg)
		registerValuationRoutes(v1, base, cfg)
		registerReconciliationRoutes(v1, base, cfg)
		registerTransferRoutes(v1, base, cfg)
	}

	return router
}

func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewLedgerHandler(base, cfg.Ledger)

	rg.POST("/movements", h.AppendMovement)
	rg.GET("/stores/:store/levels", h.ListLevels)

	position := rg.Group("/stores/:store/products/:product")
	{
		position.GET("/movements", h.ListMovements)
		position.GET("/level", h.GetLevel)
		position.GET("/level/audit", h.AuditLevel)
		position.POST("/level/rebuild", h.RebuildLevel)
		position.POST("/reserve", h.Reserve)
		position.POST("/release", h.Release)
		position.POST("/losses", h.RecordLoss)
	}
}

func registerValuationRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewValuationHandler(base, cfg.Ledger, cfg.Valuation)

	rg.GET("/stores/:store/products/:product/valuation", h.ValuateProduct)
	rg.GET("/stores/:store/valuation", h.ValuateStore)
}

func registerReconciliationRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewReconciliationHandler(base, cfg.Reconciliation)

	rg.POST("/reconciliations", h.Reconcile)
	rg.POST("/stores/:store/counts", h.ReconcileCount)
	rg.POST("/stores/:store/counts/accept", h.AcceptCount)
}

func registerTransferRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewTransferHandler(base, cfg.Transfers)

	transfers := rg.Group("/transfers")
	{
		transfers.POST("", h.Initiate)
		transfers.GET("", h.List)
		transfers.GET("/:id", h.Get)
		transfers.POST("/:id/receive", h.Receive)
	}
}
