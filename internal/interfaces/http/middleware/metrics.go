package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/synchub/backend/internal/infrastructure/telemetry"
)

// HTTPMetrics records request count and latency per route pattern. A nil
// metrics set turns the middleware into a pass-through.
func HTTPMetrics(metrics *telemetry.Metrics) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.RecordHTTPRequest(c.Request.Context(), c.Request.Method, getRoutePattern(c), c.Writer.Status(), time.Since(start))
	}
}

// getRoutePattern returns the matched pattern (e.g. "/api/v1/sync-data/:id")
// so raw ids never become metric labels.
func getRoutePattern(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "unknown"
	}
	return route
}
