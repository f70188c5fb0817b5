package obs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderRequestID carries the request identifier in and out
	HeaderRequestID = "X-Request-ID"
	// ContextKeyRequestID is the key for the request id in gin context
	ContextKeyRequestID = "request_id"
)

// RequestLogger assigns a request id and logs every request on completion
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}

		// FullPath keeps ids and share tokens out of the log
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("route", path).
			Int("status", status).
			Dur("latency", latency).
			Msg("request")
	}
}

// RequestID returns the request id assigned by RequestLogger
func RequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}
