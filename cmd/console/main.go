package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/praktis/pricecompare/api/controllers"
	"github.com/praktis/pricecompare/api/middleware"
	"github.com/praktis/pricecompare/api/routes"
	"github.com/praktis/pricecompare/internal/categories"
	"github.com/praktis/pricecompare/internal/compare"
	"github.com/praktis/pricecompare/pkg/backend"
	"github.com/praktis/pricecompare/pkg/config"
	"github.com/praktis/pricecompare/pkg/instance"
	"github.com/praktis/pricecompare/pkg/logger"
	"github.com/praktis/pricecompare/pkg/metrics"
	"github.com/praktis/pricecompare/pkg/redis"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = 5 * time.Minute
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "console"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "console",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	client, err := backend.NewClient(cfg.Backend.BaseURL, backend.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		logg.Error(context.Background(), "failed to create backend client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	readiness := map[string]controllers.Pinger{"backend": client}
	var (
		rowCache  compare.RowCache
		rateStore middleware.RateLimiterStore
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		readiness["redis"] = redisClient
		rowCache = compare.NewRedisRowCache(redisClient, cfg.Redis.RowCacheTTL)
		rateStore = redisClient
	} else {
		logg.Warn(context.Background(), "redis not configured; row cache fallback and scrape rate limit disabled")
	}

	groups := categories.NewCache(client, cfg.Console.GroupsTTL)
	sessions := compare.NewSessionStore(cfg.Console.SessionIdleTTL)

	var images compare.ImageSource
	if cfg.Console.ExportImages {
		images = client
	}

	service, err := compare.NewService(compare.ServiceParams{
		Logger:     logg,
		Backend:    client,
		Assets:     compare.NewAssetResolver(client, cfg.Backend.AssetsBatchSize, cfg.Backend.AssetsConcurrency),
		Cache:      rowCache,
		Categories: groups,
		Observer:   metrics.NewLoadMetrics(registry),
		Images:     images,
		Options: compare.Options{
			CompareLimit:    cfg.Backend.CompareLimit,
			DefaultPageSize: cfg.Console.DefaultPageSize,
			MaxPageSize:     cfg.Console.MaxPageSize,
			MerchantDomain:  cfg.Console.MerchantDomain,
			FallbackToCache: cfg.Console.FallbackToCache,
			Columns:         cfg.Console.Columns,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create comparison service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"backend":  cfg.Backend.BaseURL,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Comparison: service,
			Sessions:   sessions,
			Catalog:    client,
			Categories: groups,
			RateLimit:  rateStore,
			Readiness:  readiness,
			Gatherer:   registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, logg, sessions)

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting console server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "console server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
		logg.Info(shutdownCtx, "console server shut down")
	}
}

func sweepSessions(ctx context.Context, logg *logger.Logger, sessions *compare.SessionStore) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logg.Debug(logg.WithFields(ctx, map[string]any{"evicted": n, "active": sessions.Len()}), "compare.sessions.swept")
			}
		}
	}
}
