package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	wrapped := func(code string) error {
		return fmt.Errorf("insert booking: %w", &pgconn.PgError{Code: code})
	}

	assert.True(t, IsSerializationFailure(wrapped("40001")))
	assert.True(t, IsSerializationFailure(wrapped("40P01")))
	assert.False(t, IsSerializationFailure(wrapped("23P01")))

	assert.True(t, IsExclusionViolation(wrapped("23P01")))
	assert.False(t, IsExclusionViolation(wrapped("23505")))
	assert.True(t, IsUniqueViolation(wrapped("23505")))

	assert.False(t, IsExclusionViolation(errors.New("23P01")))
	assert.False(t, IsSerializationFailure(nil))
}

// beginner fails every BeginTx with the configured error.
type beginner struct {
	err   error
	calls int
	opts  []pgx.TxOptions
}

func (b *beginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.calls++
	b.opts = append(b.opts, opts)
	return nil, b.err
}

var readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

func TestRunWithRetryRetriesSerializationFailures(t *testing.T) {
	b := &beginner{err: &pgconn.PgError{Code: "40001"}}

	err := RunWithRetry(context.Background(), b, readCommitted, 3, func(pgx.Tx) error { return nil })

	assert.ErrorIs(t, err, ErrSerialization)
	assert.Equal(t, 3, b.calls)
	for _, opts := range b.opts {
		assert.Equal(t, pgx.ReadCommitted, opts.IsoLevel)
	}
}

func TestRunWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("connection refused")
	b := &beginner{err: boom}

	err := RunWithRetry(context.Background(), b, readCommitted, 3, func(pgx.Tx) error { return nil })

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSerialization)
	assert.Equal(t, 1, b.calls)
}

func TestRunWithRetryStopsOnCancelledContext(t *testing.T) {
	b := &beginner{err: &pgconn.PgError{Code: "40P01"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWithRetry(ctx, b, readCommitted, 5, func(pgx.Tx) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, b.calls)
}
