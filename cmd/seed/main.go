package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/hackgods/booking-engine/internal/config"
	"github.com/hackgods/booking-engine/internal/db"
	"github.com/hackgods/booking-engine/internal/logger"
)

type seedConfig struct {
	Providers           int   `envconfig:"PROVIDERS" default:"50"`
	ServicesPerProvider int   `envconfig:"SERVICES_PER_PROVIDER" default:"4"`
	ExceptionDays       int   `envconfig:"EXCEPTION_DAYS" default:"30"`
	RandomSeed          int64 `envconfig:"RANDOM_SEED" default:"0"`
}

var serviceNames = []string{
	"Haircut",
	"Beard Trim",
	"Deep Tissue Massage",
	"Manicure",
	"Consultation",
	"Physiotherapy Session",
	"Teeth Cleaning",
	"Personal Training",
	"Eyebrow Threading",
	"Color Treatment",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env, cfg.LogLevel, "seed")

	var sc seedConfig
	if err := envconfig.Process("SEED", &sc); err != nil {
		log.Fatal().Err(err).Msg("read seed settings")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	seed := sc.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)

	today := civil.DateOf(time.Now().UTC())

	for i := 0; i < sc.Providers; i++ {
		err := db.RunInTx(ctx, pool, func(tx pgx.Tx) error {
			return seedProvider(ctx, tx, sc, today)
		})
		if err != nil {
			log.Fatal().Err(err).Int("provider", i).Msg("seed provider")
		}
		if (i+1)%10 == 0 {
			log.Info().Int("seeded", i+1).Int("total", sc.Providers).Msg("providers seeded")
		}
	}

	log.Info().Int64("random_seed", seed).Int("providers", sc.Providers).Msg("seed complete")
}

func seedProvider(ctx context.Context, tx pgx.Tx, sc seedConfig, today civil.Date) error {
	providerID := uuid.New()
	name := fmt.Sprintf("%s (%s)", gofakeit.Name(), gofakeit.Company())

	if _, err := tx.Exec(ctx, `
		INSERT INTO providers (id, name, is_active)
		VALUES ($1, $2, $3)
	`, providerID, name, gofakeit.Number(1, 10) > 1); err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}

	for j := 0; j < sc.ServicesPerProvider; j++ {
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (id, provider_id, name, duration_minutes, preparation_minutes,
				cleanup_minutes, price_cents, commission_bps, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.New(),
			providerID,
			gofakeit.RandomString(serviceNames),
			15*gofakeit.Number(2, 8),
			5*gofakeit.Number(0, 2),
			5*gofakeit.Number(0, 3),
			int64(gofakeit.Number(20, 300))*100,
			gofakeit.RandomInt([]int{0, 500, 1000, 1500, 2000}),
			gofakeit.Number(1, 8) > 1,
		); err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
	}

	if err := seedWeek(ctx, tx, providerID); err != nil {
		return err
	}
	return seedExceptions(ctx, tx, providerID, today, sc.ExceptionDays)
}

// seedWeek gives weekdays a split shift with a lunch break and Saturdays a
// morning shift. Sundays stay closed.
func seedWeek(ctx context.Context, tx pgx.Tx, providerID uuid.UUID) error {
	open := 60 * gofakeit.Number(7, 10)
	lunch := 60 * gofakeit.Number(12, 13)
	closing := 60 * gofakeit.Number(17, 20)

	insert := func(day time.Weekday, start, end int) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO weekly_availability (provider_id, day_of_week, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, providerID, int(day), start, end)
		return err
	}

	for day := time.Monday; day <= time.Friday; day++ {
		if err := insert(day, open, lunch); err != nil {
			return fmt.Errorf("insert weekly window: %w", err)
		}
		if err := insert(day, lunch+60, closing); err != nil {
			return fmt.Errorf("insert weekly window: %w", err)
		}
	}
	if gofakeit.Bool() {
		if err := insert(time.Saturday, open, lunch); err != nil {
			return fmt.Errorf("insert weekly window: %w", err)
		}
	}
	return nil
}

// seedExceptions scatters days off and shortened days over the coming weeks.
func seedExceptions(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, today civil.Date, horizon int) error {
	if horizon <= 0 {
		return nil
	}

	seen := make(map[civil.Date]bool)
	for k := gofakeit.Number(0, 3); k > 0; k-- {
		date := today.AddDays(gofakeit.Number(1, horizon))
		if seen[date] {
			continue
		}
		seen[date] = true

		var err error
		if gofakeit.Bool() {
			_, err = tx.Exec(ctx, `
				INSERT INTO availability_exceptions (provider_id, exception_date, is_unavailable, reason)
				VALUES ($1, $2, TRUE, $3)
			`, providerID, db.DateArg(date), gofakeit.RandomString([]string{"vacation", "training", "sick leave"}))
		} else {
			start := 60 * gofakeit.Number(10, 12)
			_, err = tx.Exec(ctx, `
				INSERT INTO availability_exceptions (provider_id, exception_date, is_unavailable, start_minute, end_minute, reason)
				VALUES ($1, $2, FALSE, $3, $4, $5)
			`, providerID, db.DateArg(date), start, start+180, "short day")
		}
		if err != nil {
			return fmt.Errorf("insert exception: %w", err)
		}
	}
	return nil
}
