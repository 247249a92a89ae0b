package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/api"
	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Days         int // booking horizon; a short one forces contention
	Clients      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
}

type DataPool struct {
	Practitioners []uuid.UUID
	Clients       []uuid.UUID
	mu            sync.RWMutex
	appointments  []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
	started time.Time
}

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(getEnv("APP_ENV", "dev"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if cfg.Workers <= 0 || cfg.Duration <= 0 || cfg.Days <= 0 {
		logger.Fatal("SIM_WORKERS, SIM_DURATION and SIM_DAYS must be positive")
	}

	sim := &Simulator{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		started: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sim.pool, err = sim.loadDataPool(ctx); err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("simulator starting",
		zap.Int("practitioners", len(sim.pool.Practitioners)),
		zap.Int("clients", len(sim.pool.Clients)),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
	)

	sim.Run()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), time.Minute)
	defer cancelVerify()
	overlaps, err := sim.verify(verifyCtx)
	if err != nil {
		logger.Fatal("verification failed", zap.Error(err))
	}
	sim.PrintReport(overlaps)
	if overlaps > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Days:         getInt("SIM_DAYS", 3),
		Clients:      getInt("SIM_CLIENTS", 500),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.05),
	}
	if total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.CancelRatio; total > 1 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.CancelRatio /= total
	}
	return cfg
}

// loadDataPool reads practitioners from the API and invents client IDs, which the
// scheduling engine treats as opaque references.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	var resp api.PractitionersResponse
	if _, err := s.call(ctx, http.MethodGet, "/practitioners", nil, &resp); err != nil {
		return nil, fmt.Errorf("list practitioners: %w", err)
	}
	if len(resp.Practitioners) == 0 {
		return nil, fmt.Errorf("no practitioners found, run the seed command first")
	}

	pool := &DataPool{Practitioners: resp.Practitioners}
	for i := 0; i < s.config.Clients; i++ {
		pool.Clients = append(pool.Clients, uuid.MustParse(gofakeit.UUID()))
	}
	return pool, nil
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
	cfg := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < cfg.BookingRatio:
			s.doBooking(ctx, rng)
		case r < cfg.BookingRatio+cfg.ConfirmRatio:
			s.doTransition(ctx, rng, "confirm", nil, &s.metrics.Confirm)
		case r < cfg.BookingRatio+cfg.ConfirmRatio+cfg.CancelRatio:
			s.doTransition(ctx, rng, "cancel", api.CancelRequest{Reason: "simulated cancellation"}, &s.metrics.Cancel)
		default:
			s.doReadByID(ctx, rng)
		}
	}
}

// doBooking asks for the open slots of a random day and races the other workers
// for one of the first few, so bookings contend for the same times.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	pid := s.pool.Practitioners[rng.Intn(len(s.pool.Practitioners))]
	duration := []int{30, 45, 60}[rng.Intn(3)]
	date := calendar.DateOf(s.started).AddDays(1 + rng.Intn(s.config.Days))

	q := url.Values{}
	q.Set("date", date.String())
	q.Set("duration", strconv.Itoa(duration))

	var slots api.SlotsResponse
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/practitioners/"+pid.String()+"/availability/slots?"+q.Encode(), nil, &slots)
	s.metrics.Slots.Record(time.Since(start), classify(status, err))
	if err != nil || len(slots.Slots) == 0 {
		return
	}

	pick := slots.Slots[rng.Intn(min(len(slots.Slots), 4))]
	req := api.BookAppointmentRequest{
		ClientID:        s.pool.Clients[rng.Intn(len(s.pool.Clients))].String(),
		StartTime:       pick,
		DurationMinutes: duration,
		ServiceType:     "consultation",
	}

	var appt api.AppointmentResponse
	start = time.Now()
	status, err = s.call(ctx, http.MethodPost, "/practitioners/"+pid.String()+"/appointments", req, &appt)
	s.metrics.Booking.Record(time.Since(start), classify(status, err))
	if err == nil && status == http.StatusCreated {
		s.pool.AddAppointment(appt.ID)
	}
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, body any, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/"+action, body, nil)
	om.Record(time.Since(start), classify(status, err))
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	s.metrics.ReadByID.Record(time.Since(start), classify(status, err))
}

// verify lists every practitioner's appointments in the booking horizon and counts
// pairs that occupy the calendar and overlap once the buffer is applied.
func (s *Simulator) verify(ctx context.Context) (int, error) {
	from := calendar.DateOf(s.started).Start(time.UTC)
	to := from.AddDate(0, 0, s.config.Days+2)

	total := 0
	for _, pid := range s.pool.Practitioners {
		var profile api.ProfilePayload
		if _, err := s.call(ctx, http.MethodGet, "/practitioners/"+pid.String()+"/profile", nil, &profile); err != nil {
			return 0, fmt.Errorf("profile %s: %w", pid, err)
		}

		q := url.Values{}
		q.Set("from", from.Format(time.RFC3339))
		q.Set("to", to.Format(time.RFC3339))
		var list []api.AppointmentResponse
		if _, err := s.call(ctx, http.MethodGet, "/practitioners/"+pid.String()+"/appointments?"+q.Encode(), nil, &list); err != nil {
			return 0, fmt.Errorf("appointments %s: %w", pid, err)
		}

		for _, pair := range findOverlaps(list, calendar.Minutes(profile.BufferMinutes)) {
			s.logger.Error("overlapping appointments",
				zap.Stringer("practitioner_id", pid),
				zap.Stringer("first", pair[0]),
				zap.Stringer("second", pair[1]),
			)
			total++
		}
	}
	return total, nil
}

func findOverlaps(list []api.AppointmentResponse, buffer calendar.Minutes) [][2]uuid.UUID {
	var intervals []calendar.Interval
	var ids []uuid.UUID
	for _, a := range list {
		if appointment.AppointmentStatus(a.Status).Released() {
			continue
		}
		intervals = append(intervals, calendar.NewInterval(a.StartTime, calendar.Minutes(a.DurationMinutes)))
		ids = append(ids, a.ID)
	}

	var pairs [][2]uuid.UUID
	for i := range intervals {
		for j := i + 1; j < len(intervals); j++ {
			if intervals[i].Overlaps(intervals[j], buffer) {
				pairs = append(pairs, [2]uuid.UUID{ids[i], ids[j]})
			}
		}
	}
	return pairs
}

// call sends a JSON request and decodes a 2xx body into out. Non-2xx responses
// return the status with a nil error so callers can classify them.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}

func classify(status int, err error) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status == http.StatusConflict:
		return outcomeConflict
	case status == http.StatusServiceUnavailable:
		return outcomeBusy
	default:
		return outcomeError
	}
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
