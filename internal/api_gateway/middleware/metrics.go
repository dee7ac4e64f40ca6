package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/referral-ledger/internal/metrics"
)

const unmatchedRoute = "unmatched"

// Metrics records request counts and latency per route template, so path
// parameters do not explode label cardinality
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method

		metrics.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
