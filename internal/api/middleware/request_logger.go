package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invest-portal/portal_service/pkg/logger"
	"github.com/invest-portal/portal_service/pkg/metrics"
)

// RequestLogger logs each request with latency and records request metrics
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		metrics.ObserveHTTPRequest(c.Request.Method, path, status, latency)

		if status >= 500 {
			log.Error("Request failed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds())
			return
		}
		log.Debug("Request handled",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds())
	}
}
