package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/config"
	"github.com/hackgods/physician-availability/internal/logger"
	"github.com/hackgods/physician-availability/internal/slot"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	ReadRatio       float64
	Physicians      int
	Days            int
	Slots           slot.Template
}

type booking struct {
	ID          uuid.UUID
	PhysicianID string
	PatientName string
	ScheduledAt time.Time
}

type DataPool struct {
	Physicians []string
	Starts     []time.Time // every slot start in the simulated window

	mu       sync.RWMutex
	bookings []booking
}

func (dp *DataPool) AddBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

func (dp *DataPool) GetRandomBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Reschedule   OperationMetrics
	Availability OperationMetrics
	List         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	cfg, lg := loadConfig()
	defer func() { _ = lg.Sync() }()

	if err := validateConfig(cfg); err != nil {
		lg.Fatal("invalid config", zap.Error(err))
	}

	lg.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("reschedule", cfg.RescheduleRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		pool:   buildDataPool(cfg, time.Now().UTC()),
		client: &http.Client{Timeout: 10 * time.Second},
		logger: lg,
	}

	lg.Info("data pool ready",
		zap.Int("physicians", len(sim.pool.Physicians)),
		zap.Int("slot_starts", len(sim.pool.Starts)),
	)

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sim.VerifyNoDoubleBooking(verifyCtx); err != nil {
		lg.Fatal("double booking detected", zap.Error(err))
	}
	lg.Info("no double bookings found")
}

func loadConfig() (SimConfig, *zap.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	lg, err := logger.New(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+baseCfg.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		Physicians:      getInt("SIM_PHYSICIANS", 3),
		Days:            getInt("SIM_DAYS", 2),
		Slots:           baseCfg.Slots,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, lg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Physicians <= 0 || cfg.Days <= 0 {
		return fmt.Errorf("SIM_PHYSICIANS and SIM_DAYS must be > 0")
	}
	return nil
}

// buildDataPool picks a few physicians and every slot start over the next
// cfg.Days days, so workers collide on the same slots often.
func buildDataPool(cfg SimConfig, now time.Time) *DataPool {
	dp := &DataPool{}
	for i := 0; i < cfg.Physicians; i++ {
		dp.Physicians = append(dp.Physicians, fmt.Sprintf("sim-%d-%s", i+1, strings.ToLower(gofakeit.LastName())))
	}

	first := slot.StartOfDay(now).AddDate(0, 0, 1)
	for d := 0; d < cfg.Days; d++ {
		for _, s := range cfg.Slots.GenerateDailySlots(first.AddDate(0, 0, d)) {
			dp.Starts = append(dp.Starts, s.Start)
		}
	}
	return dp
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.RescheduleRatio:
				s.doReschedule(ctx, rng)
			case rng.Intn(2) == 0:
				s.doAvailability(ctx, rng)
			default:
				s.doList(ctx, rng)
			}
		}
	}
}

func (s *Simulator) randomPhysician(rng *rand.Rand) string {
	return s.pool.Physicians[rng.Intn(len(s.pool.Physicians))]
}

func (s *Simulator) randomStart(rng *rand.Rand) time.Time {
	return s.pool.Starts[rng.Intn(len(s.pool.Starts))]
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	physicianID := s.randomPhysician(rng)
	at := s.randomStart(rng)
	patient := gofakeit.Name()

	body, _ := json.Marshal(map[string]any{
		"physician_id": physicianID,
		"patient_name": patient,
		"scheduled_at": at,
	})

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPost, "/appointments", body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var created struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&created) == nil && created.ID != uuid.Nil {
				s.pool.AddBooking(booking{ID: created.ID, PhysicianID: physicianID, PatientName: patient, ScheduledAt: at})
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

// doReschedule moves a known booking to a random slot. The pool is not
// updated, so later reschedules of the same booking may 404.
func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomBooking(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]any{
		"physician_id": b.PhysicianID,
		"patient_name": b.PatientName,
		"scheduled_at": s.randomStart(rng),
	})

	start := time.Now()
	resp, err := s.send(ctx, http.MethodPut, "/appointments/"+b.ID.String(), body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Reschedule.Record(latency, success, conflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	physicianID := s.randomPhysician(rng)
	date := s.randomStart(rng).Format(time.DateOnly)

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet,
		fmt.Sprintf("/physicians/%s/availability?date=%s", url.PathEscape(physicianID), date), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	physicianID := s.randomPhysician(rng)

	start := time.Now()
	resp, err := s.send(ctx, http.MethodGet,
		fmt.Sprintf("/physicians/%s/appointments", url.PathEscape(physicianID)), nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.List.Record(latency, success, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

// VerifyNoDoubleBooking lists every simulated physician's appointments and
// fails if any timestamp appears twice.
func (s *Simulator) VerifyNoDoubleBooking(ctx context.Context) error {
	var errs []error
	for _, physicianID := range s.pool.Physicians {
		resp, err := s.send(ctx, http.MethodGet,
			fmt.Sprintf("/physicians/%s/appointments", url.PathEscape(physicianID)), nil)
		if err != nil {
			return fmt.Errorf("list %s: %w", physicianID, err)
		}

		var appts []struct {
			ScheduledAt time.Time `json:"scheduled_at"`
		}
		err = json.NewDecoder(resp.Body).Decode(&appts)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", physicianID, err)
		}

		seen := make(map[int64]bool, len(appts))
		for _, a := range appts {
			key := a.ScheduledAt.Unix()
			if seen[key] {
				errs = append(errs, fmt.Errorf("physician %s has two appointments at %s", physicianID, a.ScheduledAt))
			}
			seen[key] = true
		}
		s.logger.Info("physician verified", zap.String("physician_id", physicianID), zap.Int("appointments", len(appts)))
	}
	return errors.Join(errs...)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Physicians: %d\n", len(s.pool.Physicians))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Daily availability", &s.metrics.Availability)
	printOperationReport("List by physician", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
