package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	readyFn func() error
}

// NewMetricsHandler constructs a metrics handler. readyFn checks backing
// dependencies for the readiness probe; nil means always ready.
func NewMetricsHandler(metrics *service.MetricsService, readyFn func() error) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, readyFn: readyFn}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready verifies backing dependencies before reporting readiness.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.readyFn != nil {
		if err := h.readyFn(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
