package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs each request at debug level, or warn for 5xx.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	l := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := l.Debug()
		if c.Writer.Status() >= 500 {
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
