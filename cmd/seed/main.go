package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/config"
	"github.com/hackgods/physician-availability/internal/db"
	"github.com/hackgods/physician-availability/internal/events"
	"github.com/hackgods/physician-availability/internal/logger"
	redisclient "github.com/hackgods/physician-availability/internal/redis"
	"github.com/hackgods/physician-availability/internal/slot"
)

var specialties = []string{
	"dermatology",
	"cardiology",
	"general-practice",
	"orthopedics",
	"endocrinology",
	"neurology",
	"pediatrics",
	"psychiatry",
	"ophthalmology",
	"ent",
}

var visitNotes = []string{
	"follow-up visit",
	"annual checkup",
	"review lab results",
	"new patient intake",
	"medication review",
}

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
	lg = lg.Named("seed")

	if cfg.PostgresDSN == "" {
		lg.Fatal("POSTGRES_DSN is required")
	}

	physicians := getInt("SEED_PHYSICIANS", 20)
	days := getInt("SEED_DAYS", 14)
	fill := getInt("SEED_FILL_PERCENT", 40)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		lg.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		lg.Fatal("ensure schema", zap.Error(err))
	}

	registry := appointment.NewRegistry(appointment.NewPgStore(pool), redisclient.NewLocalLocker(), lg)
	defer registry.Close()
	events.NewPgEventLog(pool, lg).Attach(registry)

	lg.Info("seed starting",
		zap.Int("physicians", physicians),
		zap.Int("days", days),
		zap.Int("fill_percent", fill),
	)

	first := slot.StartOfDay(time.Now().UTC()).AddDate(0, 0, 1)
	total := 0
	for i := 0; i < physicians; i++ {
		physicianID := seedPhysicianID(i)
		n, err := seedPhysician(context.Background(), registry, cfg.Slots, physicianID, first, days, fill)
		if err != nil {
			lg.Fatal("seed physician", zap.String("physician_id", physicianID), zap.Error(err))
		}
		total += n
		lg.Info("physician seeded", zap.String("physician_id", physicianID), zap.Int("appointments", n))
	}

	lg.Info("seed complete", zap.Int("appointments", total))
}

func seedPhysicianID(i int) string {
	return specialties[i%len(specialties)] + "-" + strconv.Itoa(i+1)
}

// seedPhysician books roughly fill percent of the physician's slots over
// the given days. Slots already taken from an earlier run are skipped.
func seedPhysician(ctx context.Context, reg *appointment.Registry, tmpl slot.Template, physicianID string, first time.Time, days, fill int) (int, error) {
	booked := 0
	for d := 0; d < days; d++ {
		for _, s := range tmpl.GenerateDailySlots(first.AddDate(0, 0, d)) {
			if gofakeit.Number(1, 100) > fill {
				continue
			}

			appt := appointment.Appointment{
				PhysicianID: physicianID,
				PatientName: gofakeit.Name(),
				ScheduledAt: s.Start,
			}
			if gofakeit.Bool() {
				notes := gofakeit.RandomString(visitNotes)
				appt.Notes = &notes
			}

			err := reg.AddAppointment(ctx, &appt)
			switch {
			case err == nil:
				booked++
			case errors.Is(err, appointment.ErrSlotTaken):
			default:
				return booked, err
			}
		}
	}
	return booked, nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
