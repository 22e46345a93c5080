package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := newClient(addr, username, password)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// NewLazyRedisClient returns a client without pinging it. The lock store is
// optional for correctness, so callers may start while Redis is down and
// let the lock fail fast until it comes back.
func NewLazyRedisClient(addr, username, password string) *redis.Client {
	return newClient(addr, username, password)
}

func newClient(addr, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaxRetries:   1,
		PoolSize:     20,
		MinIdleConns: 1,

		// Lock acquisition is bounded by its context deadline.
		ContextTimeoutEnabled: true,
	})
}
