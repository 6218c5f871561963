// Package config loads the proxy configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/client"
	"github.com/Sternrassler/badge-proxy/pkg/logging"
)

// Config is the complete proxy configuration.
type Config struct {
	// HTTP
	Port        string
	BindAddress string
	InfoSite    string // target of the "/" redirect

	// Logging
	LogLevel  string
	LogPretty bool

	// Redis holds vendor quota state; empty disables quota tracking
	RedisURL string

	// Vendor client
	UserAgent           string
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	BreakerThreshold    int
	BreakerTimeout      time.Duration

	// Adapters
	AdaptersFile string // empty uses the built-in set

	// Cache and staleness policy
	CacheCapacity   int
	DefaultInterval time.Duration
	VendorTimeout   time.Duration
	MinAccuracy     float64
	Coalesce        bool

	// Warmup
	WarmupPaths       []string
	WarmupConcurrency int

	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		BindAddress:  getEnv("BIND_ADDRESS", ""),
		InfoSite:     getEnv("INFO_SITE", "https://shields.io"),
		LogLevel:     getEnv("LOG_LEVEL", string(logging.LevelInfo)),
		RedisURL:     getEnv("REDIS_URL", ""),
		UserAgent:    getEnv("USER_AGENT", client.DefaultUserAgent),
		AdaptersFile: getEnv("ADAPTERS_FILE", ""),
		WarmupPaths:  getEnvList("WARMUP_PATHS"),
	}

	var err error
	cfg.LogPretty, err = getEnvBool("LOG_PRETTY", false)
	collect(err)
	cfg.Coalesce, err = getEnvBool("COALESCE_REQUESTS", false)
	collect(err)
	cfg.CacheCapacity, err = getEnvInt("CACHE_CAPACITY", cache.DefaultCapacity)
	collect(err)
	cfg.RetryMaxAttempts, err = getEnvInt("RETRY_MAX_ATTEMPTS", 2)
	collect(err)
	cfg.BreakerThreshold, err = getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5)
	collect(err)
	cfg.WarmupConcurrency, err = getEnvInt("WARMUP_CONCURRENCY", 4)
	collect(err)
	cfg.DefaultInterval, err = getEnvDuration("CACHE_DEFAULT_INTERVAL", cache.DefaultRefreshInterval)
	collect(err)
	cfg.VendorTimeout, err = getEnvDuration("VENDOR_TIMEOUT", 25*time.Second)
	collect(err)
	cfg.RetryInitialBackoff, err = getEnvDuration("RETRY_INITIAL_BACKOFF", 250*time.Millisecond)
	collect(err)
	cfg.BreakerTimeout, err = getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.MinAccuracy, err = getEnvFloat("MIN_ACCURACY", 0.75)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("load config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values.
func (c Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("PORT must be a port number (got %q)", c.Port)
	}
	if err := logging.ValidateLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("USER_AGENT must not be empty")
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be >= 1 (got %d)", c.CacheCapacity)
	}
	if c.DefaultInterval < 0 {
		return fmt.Errorf("CACHE_DEFAULT_INTERVAL must not be negative (got %v)", c.DefaultInterval)
	}
	if c.VendorTimeout <= 0 {
		return fmt.Errorf("VENDOR_TIMEOUT must be positive (got %v)", c.VendorTimeout)
	}
	if c.MinAccuracy <= 0 || c.MinAccuracy > 1 {
		return fmt.Errorf("MIN_ACCURACY must be in (0, 1] (got %v)", c.MinAccuracy)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1 (got %d)", c.RetryMaxAttempts)
	}
	if c.RetryInitialBackoff < 0 {
		return fmt.Errorf("RETRY_INITIAL_BACKOFF must not be negative (got %v)", c.RetryInitialBackoff)
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("CIRCUIT_BREAKER_FAILURE_THRESHOLD must be >= 1 (got %d)", c.BreakerThreshold)
	}
	if c.BreakerTimeout <= 0 {
		return fmt.Errorf("CIRCUIT_BREAKER_TIMEOUT must be positive (got %v)", c.BreakerTimeout)
	}
	if c.WarmupConcurrency < 1 {
		return fmt.Errorf("WARMUP_CONCURRENCY must be >= 1 (got %d)", c.WarmupConcurrency)
	}
	for _, p := range c.WarmupPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("WARMUP_PATHS entries must start with '/' (got %q)", p)
		}
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
