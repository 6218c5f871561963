// Package logging configures zerolog for the proxy: one global logger set
// up at startup, and component loggers derived from it.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON
	Pretty bool

	// Output is where logs go (default: os.Stderr)
	Output io.Writer

	// Service, when set, is attached to every line as "service"
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "badge-proxy",
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ValidateLevel rejects level names Setup would not recognise.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: cache decisions (too soon, revalidate, vendor), vendor request
// flow, quota updates while healthy.
//
// Info: server startup/shutdown, warmup results, circuit breaker recovery.
//
// Warn: vendor failures and timeouts, quota throttling and blocks, retry
// exhaustion, circuit breaker opening.
//
// Error: recovered panics, failed badge rendering, configuration errors.
//
// Context Fields:
//   - key: cache key
//   - route / adapter: matched route and adapter name
//   - host: vendor host
//   - request_id: X-Request-ID of the inbound request
//   - error_class: client, server, rate_limit, network
//   - duration / interval / age: timings
