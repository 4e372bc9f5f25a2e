package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetricsRecorder receives per-request measurements
type HTTPMetricsRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// MetricsMiddleware creates middleware for collecting HTTP metrics. Paths are
// recorded by route template to bound label cardinality.
func MetricsMiddleware(collector HTTPMetricsRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
