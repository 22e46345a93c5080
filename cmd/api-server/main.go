package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hackgods/booking-engine/internal/api"
	"github.com/hackgods/booking-engine/internal/availability"
	"github.com/hackgods/booking-engine/internal/booking"
	"github.com/hackgods/booking-engine/internal/catalog"
	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
	"github.com/hackgods/booking-engine/internal/metrics"
	redisclient "github.com/hackgods/booking-engine/internal/redis"
	"github.com/hackgods/booking-engine/internal/schedule"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("api-server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.Env, cfg.LogLevel, "api-server")
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	if cfg.AutoMigrate {
		applied, err := db.Migrate(rootCtx, pgPool)
		if err != nil {
			return err
		}
		log.Info().Strs("applied", applied).Msg("migrations complete")
	}

	// Redis is optional at startup; the lock reports contention while it is down.
	rdb := redisclient.NewLazyRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	locker := redisclient.NewRedisSlotLocker(rdb, redisclient.LockOptions{
		TTL:           cfg.LockTTL,
		Wait:          cfg.LockWait,
		RetryInterval: cfg.LockRetryInterval,
	}, log)

	services := catalog.NewPgRepository(pgPool)
	bookingRepo := booking.NewPgRepository(pgPool, cfg.TxRetries)
	store := availability.NewStore(schedule.NewPgRepository(pgPool), bookingRepo)

	availabilitySvc := availability.NewService(store, services, cfg.SlotGranularity, cfg.SlotLeadTime, log, m)
	bookingSvc := booking.NewService(bookingRepo, services, locker, cfg, log, m)

	health := api.NewHealthHandler(
		pgPool.Ping,
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		cfg.Env,
		version,
	)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Bookings:     bookingSvc,
			Availability: availabilitySvc,
			Health:       health,
			Metrics:      m,
			Gatherer:     reg,
			Logger:       log,
			RateLimit:    rate.Limit(cfg.RateLimitRPS),
			RateBurst:    cfg.RateLimitBurst,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return log.WithContext(rootCtx) },
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
