package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/config"
	"github.com/hackgods/physician-availability/internal/events"
	"github.com/hackgods/physician-availability/internal/logger"
	redisclient "github.com/hackgods/physician-availability/internal/redis"
)

const reconnectDelay = 2 * time.Second

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
	lg = lg.Named("notifier")

	if cfg.RedisAddr == "" {
		lg.Fatal("REDIS_ADDR is required")
	}

	lg.Info("notifier starting up",
		zap.String("env", cfg.Env),
		zap.String("channel", cfg.EventsChannel),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		lg.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("error closing redis", zap.Error(err))
		}
	}()
	lg.Info("connected to Redis")

	for {
		err := events.Listen(rootCtx, rdb, cfg.EventsChannel, lg, func(msg events.Message) {
			notify(lg, msg)
		})
		if rootCtx.Err() != nil {
			lg.Info("shutdown signal received, stopping notifier")
			return
		}
		lg.Warn("subscription ended, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))

		select {
		case <-rootCtx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// notify stands in for outbound delivery (email, SMS) to the patient.
func notify(lg *zap.Logger, msg events.Message) {
	fields := []zap.Field{
		zap.String("physician_id", msg.PhysicianID),
		zap.String("patient_name", msg.PatientName),
	}
	if msg.ScheduledAt != nil {
		fields = append(fields, zap.Time("scheduled_at", *msg.ScheduledAt))
	}

	switch msg.Kind {
	case appointment.EventCreated:
		lg.Info("appointment confirmed", fields...)
	case appointment.EventUpdated:
		lg.Info("appointment changed", fields...)
	case appointment.EventDeleted:
		lg.Info("appointment cancelled", fields...)
	default:
		lg.Debug("ignoring event", zap.String("kind", string(msg.Kind)))
	}
}
