package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/api"
	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	DecisionRatio float64
	CancelRatio   float64
	ReadRatio     float64
	Providers     int
	Patients      int
	HotSlots      int
}

// target is one bookable provider slot discovered through the API.
type target struct {
	ProviderID int64
	DateTime   string
}

type booked struct {
	ID         int64
	PatientID  int64
	ProviderID int64
}

type DataPool struct {
	Targets      []target
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error, okStatus int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status == okStatus:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && (status == http.StatusConflict || status == http.StatusUnprocessableEntity):
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

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Decision     OperationMetrics
	Cancel       OperationMetrics
	ReadByID     OperationMetrics
	ListPatient  OperationMetrics
	ListRequests OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	logger := logging.New("simulate", "dev", getEnv("LOG_LEVEL", "info"))

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("decision", cfg.DecisionRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		pool:   &DataPool{},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sim.loadTargets(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load available slots")
	}
	logger.Info().Int("targets", len(sim.pool.Targets)).Msg("loaded bookable slots")

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if dup, err := sim.verifyNoDoubleBooking(verifyCtx); err != nil {
		logger.Error().Err(err).Msg("verification failed")
		os.Exit(1)
	} else if dup > 0 {
		logger.Error().Int("double_booked", dup).Msg("double booking detected")
		os.Exit(1)
	}
	logger.Info().Msg("no double booking detected")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		BookingRatio:  getFloat("SIM_BOOKING_RATIO", 0.4),
		DecisionRatio: getFloat("SIM_DECISION_RATIO", 0.2),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		Providers:     getInt("SIM_PROVIDERS", 20),
		Patients:      getInt("SIM_PATIENTS", 500),
		HotSlots:      getInt("SIM_HOT_SLOTS", 50),
	}

	total := cfg.BookingRatio + cfg.DecisionRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.DecisionRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Providers <= 0 || cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PROVIDERS and SIM_PATIENTS must be > 0")
	}
	return nil
}

// loadTargets collects open slots for providers 1..Providers and keeps a
// small hot set so workers contend for the same slots.
func (s *Simulator) loadTargets(ctx context.Context) error {
	var all []target
	for p := 1; p <= s.config.Providers; p++ {
		var slots []api.AvailableSlotResponse
		status, err := s.getJSON(ctx, fmt.Sprintf("/api/schedules/provider/%d/available-slots", p), &slots)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			s.logger.Warn().Int("provider_id", p).Int("status", status).Msg("no slots for provider")
			continue
		}
		for _, sl := range slots {
			all = append(all, target{ProviderID: int64(p), DateTime: sl.SlotTime})
		}
	}

	if len(all) == 0 {
		return fmt.Errorf("no available slots, run the seed first")
	}

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if s.config.HotSlots > 0 && len(all) > s.config.HotSlots {
		all = all[:s.config.HotSlots]
	}
	s.pool.Targets = all
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.DecisionRatio:
			s.doDecision(ctx, rng)
		case r < s.config.BookingRatio+s.config.DecisionRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doReadByID(ctx, rng)
			case 1:
				s.doListByPatient(ctx, rng)
			case 2:
				s.doListRequested(ctx, rng)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := int64(rng.Intn(s.config.Patients) + 1)

	req := api.CreateAppointmentRequest{
		PatientID:           patientID,
		ProviderID:          t.ProviderID,
		AppointmentDateTime: t.DateTime,
	}

	var resp api.AppointmentResponse
	start := time.Now()
	status, err := s.postJSON(ctx, "/api/appointments", req, &resp)
	s.metrics.Booking.Record(time.Since(start), status, err, http.StatusCreated)

	if err == nil && status == http.StatusCreated && resp.ID != 0 {
		s.pool.AddAppointment(booked{ID: resp.ID, PatientID: patientID, ProviderID: t.ProviderID})
	}
}

func (s *Simulator) doDecision(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	action := appointment.ActionConfirm
	if rng.Intn(4) == 0 {
		action = appointment.ActionReject
	}

	start := time.Now()
	status, err := s.postJSON(ctx,
		fmt.Sprintf("/api/appointments/%d/provider/%d/update-status", b.ID, b.ProviderID),
		api.UpdateStatusRequest{Action: string(action)}, nil)
	s.metrics.Decision.Record(time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.postJSON(ctx, fmt.Sprintf("/api/appointments/%d/patient/%d/cancel", b.ID, b.PatientID), nil, nil)
	s.metrics.Cancel.Record(time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.getJSON(ctx, fmt.Sprintf("/api/appointments/%d", b.ID), nil)
	s.metrics.ReadByID.Record(time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status, err := s.getJSON(ctx, fmt.Sprintf("/api/appointments/patient/%d", rng.Intn(s.config.Patients)+1), nil)
	s.metrics.ListPatient.Record(time.Since(start), status, err, http.StatusOK)
}

func (s *Simulator) doListRequested(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	status, err := s.getJSON(ctx, fmt.Sprintf("/api/appointments/provider/%d/requested", rng.Intn(s.config.Providers)+1), nil)
	s.metrics.ListRequests.Record(time.Since(start), status, err, http.StatusOK)
}

// verifyNoDoubleBooking counts provider slots held by more than one
// REQUESTED or CONFIRMED appointment.
func (s *Simulator) verifyNoDoubleBooking(ctx context.Context) (int, error) {
	dup := 0
	for p := 1; p <= s.config.Providers; p++ {
		var appts []api.AppointmentResponse
		status, err := s.getJSON(ctx, fmt.Sprintf("/api/appointments/provider/%d", p), &appts)
		if err != nil {
			return dup, err
		}
		if status != http.StatusOK {
			return dup, fmt.Errorf("list provider %d: status %d", p, status)
		}

		seen := make(map[string]int64)
		for _, a := range appts {
			if !appointment.Status(a.Status).Valid() || appointment.Status(a.Status).Terminal() {
				continue
			}
			if other, ok := seen[a.AppointmentDateTime]; ok {
				s.logger.Error().
					Int("provider_id", p).
					Str("slot", a.AppointmentDateTime).
					Int64("appointment_id", a.ID).
					Int64("other_appointment_id", other).
					Msg("slot held twice")
				dup++
				continue
			}
			seen[a.AppointmentDateTime] = a.ID
		}
	}
	return dup, nil
}

func (s *Simulator) getJSON(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	return s.do(req, out)
}

func (s *Simulator) postJSON(ctx context.Context, path string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(req, out)
}

func (s *Simulator) do(req *http.Request, out any) (int, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", len(s.pool.Targets))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm/Reject", &s.metrics.Decision)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListPatient)
	printOperationReport("List Requested", &s.metrics.ListRequests)
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
		fmt.Printf("  Rejected by rules: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
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
