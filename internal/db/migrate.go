package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every embedded migration that has not been applied yet.
// Each file runs in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return applied, err
		}

		var done bool
		err = RunInTx(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO schema_migrations (version) VALUES ($1)
				ON CONFLICT (version) DO NOTHING
			`, name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				done = true
				return nil
			}
			_, err = tx.Exec(ctx, string(body))
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		if !done {
			applied = append(applied, name)
		}
	}

	return applied, nil
}
