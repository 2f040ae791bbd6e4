package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// slow requests get flagged in the log so archive latency shows up without
// tracing infrastructure.
const slowRequestThreshold = time.Second

// RequestLogger assigns a short correlation id to each request and logs the
// outcome with latency once the handler chain finishes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()[:8]
		c.Set("request_id", requestID)
		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		slow := ""
		if elapsed > slowRequestThreshold {
			slow = " SLOW"
		}
		log.Printf("[%s] %s %s -> %d (%v)%s",
			requestID, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), elapsed, slow)
	}
}

// requestID returns the correlation id set by RequestLogger.
func requestID(c *gin.Context) string {
	if id, ok := c.Get("request_id"); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return "-"
}
