package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/icees-go/icees-api/internal/observability"
)

// Metrics records request counts and latency per route template. Scrapes of
// /metrics are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/metrics" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		m.HTTPInflight(1)
		defer m.HTTPInflight(-1)
		c.Next()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
