package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kenyoli98/iep-peruano-chino-full-sub001/internal/service"
)

// routeUnmatched caps label cardinality for requests that hit no
// registered route, such as scans for arbitrary paths.
const routeUnmatched = "sin_ruta"

// Metrics returns middleware that records request totals and latency per
// registered route. The Prometheus scrape and the health check are not
// observed; they would dominate the request counters.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		raw := c.Request.URL.Path
		if raw == "/metrics" || raw == "/health" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = routeUnmatched
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
