package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"metas/internal/amqp"
	"metas/internal/backend"
	"metas/internal/cache"
	"metas/internal/cli"
	apphttp "metas/internal/http"
	"metas/internal/log"
	"metas/internal/metrics"
	"metas/internal/middleware/auth"
	"metas/internal/middleware/ratelimit"
	"metas/internal/services"
	"metas/internal/session"
	"metas/internal/state"
	"metas/internal/storage"
)

const (
	sessionCleanupInterval = time.Minute
	shutdownTimeout        = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting metas server", "backend", cfg.DataBackend, "port", cfg.Port)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}

	// AMQP is optional: without it the worker falls back to its schedule.
	var opts []services.Option
	opts = append(opts, services.WithLogger(logger))
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - ledger events will not be published")
	}
	svc := services.New(result.Backend, opts...)

	var snapshots *state.SnapshotStore
	if cfg.SessionSnapshotDir != "" {
		snapshots, err = state.NewSnapshotStore(cfg.SessionSnapshotDir)
		if err != nil {
			logger.Warn("Session snapshots disabled", log.FieldError, err, "dir", cfg.SessionSnapshotDir)
			snapshots = nil
		}
	}
	sessions := session.New(session.DefaultMaxSessions, cfg.SessionTTL, snapshots, logger)

	cacheManager := cache.NewManager()
	cacheManager.Register(sessions)
	cacheManager.StartCleanup(sessionCleanupInterval)

	ready := map[string]apphttp.Pinger{"backend": result.Backend}

	var limiter ratelimit.Allower
	var memLimiter *ratelimit.Limiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to initialize Redis client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		redisLimiter := ratelimit.NewRedisLimiter(client, cfg.RateLimitPerMinute)
		limiter = redisLimiter
		ready["redis"] = redisLimiter
		logger.Info("Using Redis rate limiter", "per_minute", cfg.RateLimitPerMinute)
	} else {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.RequestsPerMinute = cfg.RateLimitPerMinute
		memLimiter = ratelimit.NewLimiter(rlCfg)
		limiter = memLimiter
		metrics.TrackLimiterClients(memLimiter.ActiveClients)
		logger.Info("Using in-memory rate limiter", "per_minute", cfg.RateLimitPerMinute)
	}

	var files http.Handler
	if fs, ok := result.Backend.(interface{ Files() *storage.FileStore }); ok && fs.Files() != nil {
		files = http.FileServer(http.Dir(fs.Files().Dir()))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Services:       svc,
		Sessions:       sessions,
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		Logger:         logger,
		Limiter:        limiter,
		Files:          files,
		Ready:          ready,
		TrustedProxies: cfg.TrustedProxies,
		MaxUploadSize:  cfg.MaxUploadSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdownCtx, done := cli.GracefulShutdown(ctx, logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if memLimiter != nil {
			memLimiter.Stop()
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		cli.WaitForShutdown(done)
		os.Exit(1)
	}

	<-shutdownCtx.Done()
	cli.WaitForShutdown(done)
	logger.Info("Server stopped gracefully")
}
