package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/catalog"
	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
	"github.com/hackgods/booking-engine/internal/metrics"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	log := logger.New(cfg.Env, cfg.LogLevel, "expiry-worker")
	log.Info().Dur("interval", cfg.WorkerInterval).Int("batch", cfg.ExpiryBatch).Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Expiry never takes slot locks.
	svc := booking.NewService(
		booking.NewPgRepository(pgPool, cfg.TxRetries),
		catalog.NewPgRepository(pgPool),
		redisclient.NoLocker{},
		cfg,
		log,
		metrics.New(reg),
	)

	srv := newMetricsServer(":"+cfg.WorkerMetricsPort, reg)

	g, gCtx := errgroup.WithContext(log.WithContext(rootCtx))

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		// Run once at startup
		runOnce(gCtx, svc, log)

		ticker := time.NewTicker(cfg.WorkerInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				log.Info().Msg("shutdown signal received, stopping expiry worker")
				return nil
			case <-ticker.C:
				runOnce(gCtx, svc, log)
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("expiry-worker stopped with error")
	}
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func runOnce(ctx context.Context, svc *booking.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := svc.ExpirePending(runCtx)
	if err != nil {
		log.Error().Err(err).Int("expired", expired).Msg("expiry run error")
		return
	}
	log.Info().Int("expired", expired).Dur("took", time.Since(start)).Msg("expiry run complete")
}
