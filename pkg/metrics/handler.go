package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts GET /metrics for Prometheus scraping.
func RegisterRoutes(rg gin.IRouter) {
	handler := promhttp.Handler()
	rg.GET("/metrics", gin.WrapH(handler))
}

// Middleware returns a gin middleware that records HTTPRequestDuration and
// HTTPRequestCounter for every request, keyed by the matched route template
// rather than the raw path so that path parameters do not explode label
// cardinality.
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), duration)
	}
}
