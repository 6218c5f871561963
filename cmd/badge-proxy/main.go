// Command badge-proxy serves status badges for third-party vendors,
// answering from an adaptive cache whenever the vendor's data allows it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/badge-proxy/internal/config"
	"github.com/Sternrassler/badge-proxy/internal/server"
	"github.com/Sternrassler/badge-proxy/pkg/adapter"
	"github.com/Sternrassler/badge-proxy/pkg/cache"
	"github.com/Sternrassler/badge-proxy/pkg/circuitbreaker"
	"github.com/Sternrassler/badge-proxy/pkg/client"
	"github.com/Sternrassler/badge-proxy/pkg/logging"
	"github.com/Sternrassler/badge-proxy/pkg/metrics"
	"github.com/Sternrassler/badge-proxy/pkg/periodic"
	"github.com/Sternrassler/badge-proxy/pkg/proxy"
	"github.com/Sternrassler/badge-proxy/pkg/ratelimit"
	"github.com/Sternrassler/badge-proxy/pkg/warmup"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "badge-proxy: %v\n", err)
		os.Exit(2)
	}

	logger := logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "badge-proxy",
	})

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

// app is the wired proxy.
type app struct {
	router  *gin.Engine
	ctrl    *proxy.Controller
	redis   *redis.Client
	closers []io.Closer
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metrics.SetBuildInfo(version)
	logger.Info().
		Str("version", version).
		Str("addr", cfg.Addr()).
		Str("user_agent", cfg.UserAgent).
		Bool("rate_limit_tracking", a.redis != nil).
		Bool("coalesce", cfg.Coalesce).
		Msg("Badge proxy configured")

	if len(cfg.WarmupPaths) > 0 {
		w := warmup.New(a.router, warmup.Config{
			MaxConcurrency: cfg.WarmupConcurrency,
			Timeout:        cfg.VendorTimeout,
		}, logging.NewLogger("warmup"))
		go w.Run(ctx, cfg.WarmupPaths)
	}

	srv := server.NewServer(a.router, cfg.Addr(), cfg.VendorTimeout+cfg.VendorTimeout/5, cfg.ShutdownTimeout, logger, a.closers...)
	return srv.Run(ctx)
}

// build wires every component from cfg.
func build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	gin.SetMode(gin.ReleaseMode)

	// Step 1: Optional redis for vendor quota tracking
	var tracker *ratelimit.Tracker
	checks := map[string]server.Pinger{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		tracker = ratelimit.NewTracker(a.redis, logging.NewLogger("ratelimit"))
		checks["redis"] = tracker
		logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")
	}

	// Step 2: Vendor client
	breakers := circuitbreaker.NewSet(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerThreshold,
		SuccessThreshold: circuitbreaker.DefaultConfig().SuccessThreshold,
		Timeout:          cfg.BreakerTimeout,
	}, logging.NewLogger("circuitbreaker"))

	clientCfg := client.DefaultConfig()
	clientCfg.UserAgent = cfg.UserAgent
	clientCfg.AttemptTimeout = cfg.VendorTimeout
	clientCfg.Retry.MaxAttempts = cfg.RetryMaxAttempts
	clientCfg.Retry.InitialBackoff = cfg.RetryInitialBackoff
	clientCfg.RateLimiter = tracker
	clientCfg.Breakers = breakers
	vendorClient, err := client.New(clientCfg, logging.NewLogger("client"))
	if err != nil {
		return nil, a.fail(fmt.Errorf("create vendor client: %w", err))
	}

	// Step 3: Adapters
	var reg *adapter.Registry
	if cfg.AdaptersFile != "" {
		reg, err = adapter.LoadFile(cfg.AdaptersFile)
	} else {
		reg, err = adapter.Default()
	}
	if err != nil {
		return nil, a.fail(fmt.Errorf("load adapters: %w", err))
	}
	logger.Info().Int("adapters", reg.Len()).Str("file", cfg.AdaptersFile).Msg("Adapters loaded")

	// Step 4: Cache and staleness controller
	a.ctrl, err = proxy.New(cache.NewStore(cfg.CacheCapacity), proxy.Config{
		MinAccuracy:     cfg.MinAccuracy,
		DefaultInterval: cfg.DefaultInterval,
		Timeout:         cfg.VendorTimeout,
		Coalesce:        cfg.Coalesce,
	}, logging.NewLogger("proxy"))
	if err != nil {
		return nil, a.fail(fmt.Errorf("create controller: %w", err))
	}
	a.closers = append(a.closers, a.ctrl)
	if a.redis != nil {
		a.closers = append(a.closers, a.redis)
	}

	// Step 5: Router
	a.router, err = server.NewRouter(server.Options{
		Registry:   reg,
		Controller: a.ctrl,
		Source: adapter.Source{
			Fetcher:  vendorClient,
			Periodic: periodic.New[adapter.Sample](),
		},
		Checks:   checks,
		Breakers: breakers,
		InfoSite: cfg.InfoSite,
		Logger:   logging.NewLogger("server"),
	})
	if err != nil {
		return nil, a.fail(fmt.Errorf("create router: %w", err))
	}
	return a, nil
}

// fail releases what build already opened.
func (a *app) fail(err error) error {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	return err
}
