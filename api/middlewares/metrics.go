package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/codesync-go/metrics"
)

// Metrics records one request sample per handled route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
