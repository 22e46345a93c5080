package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so
// repositories can run the same SQL inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ErrSerialization is returned once every attempt has been aborted by a
// serialization failure or deadlock.
var ErrSerialization = errors.New("transaction could not be serialized")

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeExclusionViolation   = "23P01"
	codeUniqueViolation      = "23505"
)

// RunWithRetry runs fn in a transaction with the given options, retrying the
// whole transaction up to attempts times when Postgres aborts it with a
// serialization failure or deadlock. Errors returned by fn are passed
// through untouched.
func RunWithRetry(ctx context.Context, db TxBeginner, opts pgx.TxOptions, attempts int, fn func(pgx.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, db, opts, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}

		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}

	return fmt.Errorf("%w: %v", ErrSerialization, err)
}

// RunInTx runs fn in a READ COMMITTED transaction. Use row locks inside fn
// when the transaction reads before it writes.
func RunInTx(ctx context.Context, db TxBeginner, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func IsSerializationFailure(err error) bool {
	return hasCode(err, codeSerializationFailure) || hasCode(err, codeDeadlockDetected)
}

// IsExclusionViolation reports an EXCLUDE constraint rejection, which for the
// bookings table means an overlapping active booking already exists.
func IsExclusionViolation(err error) bool {
	return hasCode(err, codeExclusionViolation)
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
