package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/styletag-backend/internal/observability"
)

const metricsRoute = "/metrics"

// Metrics records request count, latency and in-flight requests per route.
// Scrapes of the metrics endpoint itself are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.FullPath() == metricsRoute {
			c.Next()
			return
		}
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, observability.StatusLabel(c.Writer.Status()), time.Since(start))
	}
}
