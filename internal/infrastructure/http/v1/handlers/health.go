package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/metrics"
)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler provides health and metrics endpoints.
type HealthHandler struct {
	checks    map[string]Pinger
	collector metrics.Collector
}

// NewHealthHandler creates a health handler. checks maps a dependency name
// ("database", "redis") to its pinger; nil pingers are skipped.
func NewHealthHandler(checks map[string]Pinger, collector metrics.Collector) *HealthHandler {
	active := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			active[name] = p
		}
	}
	return &HealthHandler{checks: active, collector: metrics.OrNop(collector)}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))

	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "healthy"
	}

	body := gin.H{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "error"
	}
	c.JSON(status, body)
}

// Metrics handles GET /metrics with the collector snapshot.
func (h *HealthHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Snapshot())
}
