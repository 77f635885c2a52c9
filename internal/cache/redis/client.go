// Package redis stores the latest market snapshot per key and fans update
// signals out over pub/sub, using go-redis/v9. Only current values are kept;
// there is no history.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradesim/internal/config"
)

// connectTimeout bounds the verification ping in New.
const connectTimeout = 5 * time.Second

// Client is a thin handle over the go-redis driver, shared by the snapshot
// cache and the signal bus.
type Client struct {
	rdb *redis.Client
}

// New dials Redis with the configured pool settings and verifies the
// connection with a ping before returning.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	var tlsCfg *tls.Config
	if cfg.TLSEnabled {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		TLSConfig:  tlsCfg,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw *redis.Client for sub-packages that need direct
// access to the driver.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
