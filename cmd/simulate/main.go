// simulate drives the waitlist API with concurrent slot-freed, accept,
// decline, and read traffic, then prints latency and outcome counts. Slot
// churn plus responses is what shakes out hold races and cascade bugs.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/daminiR/medspa-sub015/internal/config"
	"github.com/daminiR/medspa-sub015/internal/db"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	SlotFreeRatio float64
	RespondRatio  float64
	ReadRatio     float64
	AcceptBias    float64 // of responses, fraction that accept vs decline
	PatientLimit  int
	SlotLimit     int
	PostgresDSN   string
}

type slotInfo struct {
	ID         uuid.UUID
	ServiceID  uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotInfo

	mu     sync.RWMutex
	offers []uuid.UUID
}

func (dp *DataPool) AddOffer(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.offers = append(dp.offers, id)
}

func (dp *DataPool) RandomOffer(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.offers) == 0 {
		return uuid.Nil, false
	}
	return dp.offers[rng.Intn(len(dp.offers))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
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
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	SlotFreed OperationMetrics
	Accept    OperationMetrics
	Decline   OperationMetrics
	Position  OperationMetrics
	ListOff   OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d slot_free=%.2f respond=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.SlotFreeRatio, cfg.RespondRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d free slots", len(dataPool.Patients), len(dataPool.Slots))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		SlotFreeRatio: getFloat("SIM_SLOT_FREE_RATIO", 0.3),
		RespondRatio:  getFloat("SIM_RESPOND_RATIO", 0.4),
		ReadRatio:     getFloat("SIM_READ_RATIO", 0.3),
		AcceptBias:    getFloat("SIM_ACCEPT_BIAS", 0.6),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		SlotLimit:     getInt("SIM_SLOT_LIMIT", 500),
		PostgresDSN:   baseCfg.PostgresDSN,
	}

	total := cfg.SlotFreeRatio + cfg.RespondRatio + cfg.ReadRatio
	if total > 0 {
		cfg.SlotFreeRatio /= total
		cfg.RespondRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT id, service_id, provider_id, start_time, end_time
		FROM slots
		WHERE state = 'free' AND start_time > now()
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s slotInfo
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.ProviderID, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Slots) == 0 {
		return nil, fmt.Errorf("no free slots loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
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
			case r < s.config.SlotFreeRatio:
				s.doSlotFreed(ctx, rng)
			case r < s.config.SlotFreeRatio+s.config.RespondRatio:
				s.doRespond(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doListOffers(ctx, rng)
				} else {
					s.doPosition(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) doSlotFreed(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]

	start := time.Now()

	reqBody := map[string]interface{}{
		"slot_id":     slot.ID.String(),
		"service_id":  slot.ServiceID.String(),
		"provider_id": slot.ProviderID.String(),
		"start_time":  slot.StartTime,
		"end_time":    slot.EndTime,
	}
	body, _ := json.Marshal(reqBody)

	req, _ := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/slots/freed", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			success = true
			var freedResp struct {
				Offer *struct {
					ID uuid.UUID `json:"id"`
				} `json:"offer"`
			}
			bodyBytes, _ := io.ReadAll(resp.Body)
			if len(bodyBytes) > 0 {
				json.Unmarshal(bodyBytes, &freedResp)
				if freedResp.Offer != nil && freedResp.Offer.ID != uuid.Nil {
					s.pool.AddOffer(freedResp.Offer.ID)
				}
			}
		case http.StatusConflict:
			conflict = true
		}
	}

	s.metrics.SlotFreed.Record(latency, success, conflict)
}

func (s *Simulator) doRespond(ctx context.Context, rng *rand.Rand) {
	offerID, ok := s.pool.RandomOffer(rng)
	if !ok {
		return
	}

	action := "decline"
	om := &s.metrics.Decline
	if rng.Float64() < s.config.AcceptBias {
		action = "accept"
		om = &s.metrics.Accept
	}

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("%s/offers/%s/%s", s.config.APIBaseURL, offerID.String(), action), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			success = true
		case http.StatusConflict:
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doPosition(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	// Walk through the patient's entries and query the first position.
	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/patients/%s/waitlist", s.config.APIBaseURL, patientID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.Position.Record(latency, success, false)
}

func (s *Simulator) doListOffers(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("%s/patients/%s/offers", s.config.APIBaseURL, patientID.String()), nil)

	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListOff.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Slot freed", &s.metrics.SlotFreed)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Decline", &s.metrics.Decline)
	printOperationReport("Patient waitlist", &s.metrics.Position)
	printOperationReport("Patient offers", &s.metrics.ListOff)
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

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, def time.Duration) time.Duration {
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
