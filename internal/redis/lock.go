package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/hackgods/booking-engine/internal/apperror"
	"github.com/hackgods/booking-engine/internal/schedule"
)

var (
	ErrLockNotAcquired = apperror.New(apperror.LockContention, "slot is currently being booked, please retry")
	ErrLockUnavailable = apperror.New(apperror.LockContention, "slot lock store unavailable, please retry")
)

const releaseTimeout = time.Second

// SlotKey identifies one candidate start time on a provider's calendar.
type SlotKey struct {
	ProviderID uuid.UUID
	Date       civil.Date
	Start      schedule.TimeOfDay
}

func (k SlotKey) String() string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", k.ProviderID, k.Date, k.Start)
}

// Locker guards a critical section per slot. Holding the lock only reduces
// contention: it can expire while fn runs, so fn must still validate
// against the database.
type Locker interface {
	WithSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error
}

// NoLocker runs fn without taking any lock. It serves processes that
// never create bookings, such as the expiry worker.
type NoLocker struct{}

func (NoLocker) WithSlotLock(ctx context.Context, _ SlotKey, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type LockOptions struct {
	// TTL bounds how long a crashed holder can block the slot.
	TTL time.Duration
	// Wait is how long acquisition polls before giving up.
	Wait          time.Duration
	RetryInterval time.Duration
}

type redisSlotLocker struct {
	client  *redis.Client
	opts    LockOptions
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewRedisSlotLocker creates a locker that uses one Redis key per slot.
// Calls to Redis go through a circuit breaker, so an unreachable Redis turns
// into an immediate ErrLockUnavailable instead of a timeout per request.
func NewRedisSlotLocker(client *redis.Client, opts LockOptions, log zerolog.Logger) Locker {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 300 * time.Millisecond
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}

	log = log.With().Str("component", "slot_lock").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-slot-lock",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &redisSlotLocker{
		client:  client,
		opts:    opts,
		breaker: breaker,
		log:     log,
	}
}

// breakerSuccess treats a caller giving up as no evidence about Redis. A
// deadline is a failure: an unresponsive server only ever shows up as one.
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, key SlotKey, fn func(ctx context.Context) error) error {
	name := key.String()
	token := uuid.NewString()

	if err := l.acquire(ctx, name, token); err != nil {
		return err
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := l.release(releaseCtx, name, token); err != nil {
			l.log.Warn().Err(err).Str("key", name).Msg("slot lock release failed, relying on ttl")
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisSlotLocker) acquire(ctx context.Context, key, token string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.opts.Wait)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.tryAcquire(waitCtx, key, token)
		switch {
		case err == nil && ok:
			return nil
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && waitCtx.Err() != nil:
			return ErrLockNotAcquired
		case err != nil:
			return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}

func (l *redisSlotLocker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
