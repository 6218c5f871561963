package server

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/badge"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// requestID ensures each request has an ID. A client supplied
// X-Request-ID is kept, otherwise a UUID v4 is generated.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request ID set by the request ID middleware.
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(requestIDKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}

// recovery turns a handler panic into the generic error badge. Badges are
// embedded as images, so the status stays 200 and the body stays a badge.
func recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Str("request_id", GetRequestID(c)).
					Str("path", c.Request.URL.Path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("Handler panic recovered")

				if c.Writer.Written() {
					c.Abort()
					return
				}
				format := formatOf(c.Request.URL.Path)
				c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
				writeBadge(c, format, badge.Internal())
				c.Abort()
			}
		}()
		c.Next()
	}
}

// requestLogger logs one line per request, levelled by status code.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		log := logger.With().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Logger()

		switch {
		case status >= 500:
			log.Error().Msg("HTTP request")
		case status >= 400:
			log.Warn().Msg("HTTP request")
		default:
			log.Debug().Msg("HTTP request")
		}
	}
}

// corsMiddleware lets any page embed or fetch badges.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Accept", "Cache-Control", RequestIDHeader},
		ExposeHeaders:   []string{RequestIDHeader},
		MaxAge:          24 * time.Hour,
	})
}

// compression gzips responses for clients that accept it.
func compression() gin.HandlerFunc {
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"}))
}

// formatOf guesses the badge format from a request path.
func formatOf(path string) string {
	if strings.HasSuffix(path, "."+badge.FormatJSON) {
		return badge.FormatJSON
	}
	return badge.FormatSVG
}
