package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Context keys handlers set so the request log line carries the envelope
// summary.
const (
	KeyEnvelopeVersion  = "amf.version"
	KeyEnvelopeBodies   = "amf.bodies"
	KeyEnvelopeEncoding = "amf.encoding"
	KeyEnvelopeUser     = "amf.user"
	KeyParseError       = "amf.error"
)

func RequestLogger(logger zerolog.Logger, gateway string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event = event.
			Str("gateway", gateway).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if v := c.GetString(KeyEnvelopeVersion); v != "" {
			event = event.Str("amf_version", v).
				Int("amf_bodies", c.GetInt(KeyEnvelopeBodies)).
				Str("amf_encoding", c.GetString(KeyEnvelopeEncoding))
		}
		if user := c.GetString(KeyEnvelopeUser); user != "" {
			event = event.Str("amf_user", user)
		}
		if msg := c.GetString(KeyParseError); msg != "" {
			event = event.Str("amf_error", msg)
		}
		event.Msg("http_request")
	}
}

func RequestMetricsMiddleware(gateway string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		RecordHTTPRequest(gateway, c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
