package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/api"
	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/availability"
	"github.com/hackgods/physician-availability/internal/config"
	"github.com/hackgods/physician-availability/internal/db"
	"github.com/hackgods/physician-availability/internal/events"
	"github.com/hackgods/physician-availability/internal/logger"
	"github.com/hackgods/physician-availability/internal/metrics"
	redisclient "github.com/hackgods/physician-availability/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	lg.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("slot_day_start", cfg.Slots.DayStart),
		zap.Duration("slot_cadence", cfg.Slots.Cadence),
		zap.Int("slots_per_day", cfg.Slots.Count),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("availability")
	var deps []api.Dependency

	// Store
	var store appointment.Store
	var eventLog *events.PgEventLog
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.EnsureSchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			lg.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		lg.Info("connected to Postgres")

		store = appointment.NewPgStore(pgPool)
		eventLog = events.NewPgEventLog(pgPool, lg)
		deps = append(deps, api.Dependency{Name: "postgres", Check: pgPool.Ping})
	} else {
		lg.Warn("POSTGRES_DSN not set, using in-memory appointment store")
		store = appointment.NewMemoryStore()
	}

	// Lock and pub/sub
	var locker redisclient.Locker
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			lg.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Warn("error closing redis", zap.Error(err))
			}
		}()
		lg.Info("connected to Redis")

		locker = redisclient.NewRedisPhysicianLocker(rdb, redisclient.LockOptions{
			TTL:         cfg.LockTTL,
			RetryDelay:  cfg.LockRetryDelay,
			MaxAttempts: cfg.LockMaxAttempts,
		})
		deps = append(deps, api.Dependency{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
	} else {
		lg.Warn("REDIS_ADDR not set, physician locks are local to this process")
		locker = redisclient.NewLocalLocker()
	}

	registry := appointment.NewRegistry(store, locker, lg)
	defer registry.Close()

	collector.Attach(registry)
	if eventLog != nil {
		eventLog.Attach(registry)
	}
	if rdb != nil {
		events.NewRedisPublisher(rdb, cfg.EventsChannel, lg).Attach(registry)
	}

	engine := availability.NewEngine(store, cfg.Slots)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Registry:     registry,
			Engine:       engine,
			Metrics:      collector,
			Logger:       lg,
			Dependencies: deps,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	lg.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", zap.Error(err))
	}
}
