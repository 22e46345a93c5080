package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/booking-engine/internal/api"
	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
)

// SimConfig drives a race simulation: every round sends Concurrency
// identical booking requests for one free slot at the same instant.
type SimConfig struct {
	APIBaseURL  string        `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	Rounds      int           `envconfig:"ROUNDS" default:"20"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"50"`
	DaysAhead   int           `envconfig:"DAYS_AHEAD" default:"14"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

type target struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Date       civil.Date
	Time       string
}

type OperationMetrics struct {
	Total      int64
	Created    int64
	Booked     int64
	Contention int64
	Error      int64
	Latencies  []time.Duration
	mu         sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, code string) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Created, 1)
	case status == http.StatusConflict && code == "ALREADY_BOOKED":
		atomic.AddInt64(&om.Booked, 1)
	case status == http.StatusConflict && code == "LOCK_CONTENTION":
		atomic.AddInt64(&om.Contention, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Simulator struct {
	config  SimConfig
	pool    *pgxpool.Pool
	rdb     *redis.Client
	client  *http.Client
	log     zerolog.Logger
	metrics OperationMetrics

	// rounds in which more than one request was accepted
	doubleBooked int
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("failed to load base config")
	}
	log := logger.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	var cfg SimConfig
	if err := envconfig.Process("SIM", &cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid simulation config")
	}
	if cfg.Rounds <= 0 || cfg.Concurrency <= 1 {
		log.Fatal().Msg("SIM_ROUNDS must be > 0 and SIM_CONCURRENCY > 1")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, baseCfg.PostgresMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(baseCfg.RedisAddr, baseCfg.RedisUsername, baseCfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	sim := &Simulator{
		config: cfg,
		pool:   pgPool,
		rdb:    rdb,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}

	if err := sim.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("simulation failed")
	}

	overlaps, err := sim.countOverlaps(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("overlap check failed")
	}

	leftover, err := sim.countLocks(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("lock key scan failed")
	}

	sim.PrintReport(overlaps, leftover)
	if overlaps > 0 || sim.doubleBooked > 0 {
		os.Exit(1)
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info().Int("rounds", s.config.Rounds).Int("concurrency", s.config.Concurrency).Msg("starting simulation")

	for round := 0; round < s.config.Rounds; round++ {
		tgt, err := s.findTarget(ctx)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}

		created, err := s.race(ctx, tgt)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		if created > 1 {
			s.doubleBooked++
		}

		s.log.Info().
			Int("round", round).
			Str("provider_id", tgt.ProviderID.String()).
			Str("date", tgt.Date.String()).
			Str("time", tgt.Time).
			Int64("created", created).
			Msg("round complete")
	}
	return nil
}

// findTarget picks a random bookable service and asks the API for its first
// free slot within the configured horizon.
func (s *Simulator) findTarget(ctx context.Context) (target, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.provider_id
		FROM services s
		JOIN providers p ON p.id = s.provider_id
		WHERE s.is_active AND p.is_active
		ORDER BY random()
		LIMIT 10
	`)
	if err != nil {
		return target{}, fmt.Errorf("load services: %w", err)
	}
	defer rows.Close()

	var candidates []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.ServiceID, &t.ProviderID); err != nil {
			return target{}, err
		}
		candidates = append(candidates, t)
	}
	if err := rows.Err(); err != nil {
		return target{}, err
	}

	today := civil.DateOf(time.Now().UTC())
	for _, t := range candidates {
		for d := 1; d <= s.config.DaysAhead; d++ {
			date := today.AddDays(d)

			var resp api.AvailabilityResponse
			url := fmt.Sprintf("%s/providers/%s/availability?date=%s&service_id=%s",
				s.config.APIBaseURL, t.ProviderID, date, t.ServiceID)
			if err := s.getJSON(ctx, url, &resp); err != nil {
				return target{}, err
			}
			if len(resp.Slots) > 0 {
				t.Date = date
				t.Time = resp.Slots[0].String()
				return t, nil
			}
		}
	}
	return target{}, errors.New("no free slot found; run the seed first")
}

// race fires Concurrency create requests for the same slot behind a start
// barrier and returns how many were accepted.
func (s *Simulator) race(ctx context.Context, tgt target) (int64, error) {
	var created atomic.Int64
	startGate := make(chan struct{})

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Concurrency; i++ {
		g.Go(func() error {
			body, err := json.Marshal(api.CreateBookingRequest{
				ClientID:   uuid.NewString(),
				ProviderID: tgt.ProviderID.String(),
				ServiceID:  tgt.ServiceID.String(),
				Date:       tgt.Date.String(),
				Time:       tgt.Time,
			})
			if err != nil {
				return err
			}

			<-startGate

			status, code, latency, err := s.post(gCtx, s.config.APIBaseURL+"/bookings", body)
			if err != nil {
				s.metrics.Record(latency, 0, "")
				return nil
			}
			s.metrics.Record(latency, status, code)
			if status == http.StatusCreated {
				created.Add(1)
			}
			return nil
		})
	}

	close(startGate)
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return created.Load(), nil
}

func (s *Simulator) post(ctx context.Context, url string, body []byte) (int, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, "", latency, err
	}
	defer resp.Body.Close()

	var errResp api.ErrorResponse
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &errResp)
	}
	return resp.StatusCode, errResp.Error, latency, nil
}

func (s *Simulator) getJSON(ctx context.Context, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", url, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// countOverlaps returns the number of pairs of occupying bookings that
// share a provider and date and intersect in time. Anything above zero is
// a double booking.
func (s *Simulator) countOverlaps(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings a
		JOIN bookings b
		  ON a.provider_id = b.provider_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		WHERE a.status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS')
		  AND b.status IN ('PENDING', 'CONFIRMED', 'IN_PROGRESS')
		  AND a.start_minute < b.start_minute + b.total_duration_minutes
		  AND b.start_minute < a.start_minute + a.total_duration_minutes
	`).Scan(&n)
	return n, err
}

// countLocks returns how many slot lock keys are still held. Every request
// has finished by now, so anything left was not released by its holder.
func (s *Simulator) countLocks(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, "lock:slot:*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (s *Simulator) PrintReport(overlaps, leftoverLocks int) {
	om := &s.metrics
	total := atomic.LoadInt64(&om.Total)
	avg, p50, p95, max := om.Stats()

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Rounds: %d\n", s.config.Rounds)
	fmt.Printf("Concurrency: %d\n", s.config.Concurrency)
	fmt.Println()
	fmt.Printf("Requests: %d\n", total)
	fmt.Printf("  Created: %d\n", atomic.LoadInt64(&om.Created))
	fmt.Printf("  Already booked: %d\n", atomic.LoadInt64(&om.Booked))
	fmt.Printf("  Lock contention: %d\n", atomic.LoadInt64(&om.Contention))
	fmt.Printf("  Errors: %d\n", atomic.LoadInt64(&om.Error))
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
	fmt.Printf("Rounds with more than one winner: %d\n", s.doubleBooked)
	fmt.Printf("Overlapping occupying bookings in database: %d\n", overlaps)
	fmt.Printf("Slot locks still held: %d\n", leftoverLocks)
}
