// Package infra opens the external stores the service runs on.
package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/config"
)

// Conns holds the opened clients. In development either may be nil, which selects
// the in-memory backend for the stores it serves.
type Conns struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to Postgres and Redis. Outside development both URLs are required.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Conns, error) {
	conns := &Conns{}
	if cfg.DatabaseURL != "" || !cfg.IsDevelopment() {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		conns.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger")
	}

	if cfg.RedisURL != "" || !cfg.IsDevelopment() {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			conns.Close(logger)
			return nil, err
		}
		conns.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, using in-memory OTP store and disabling idempotency")
	}
	return conns, nil
}

// Close releases whatever Open connected.
func (c *Conns) Close(logger *slog.Logger) {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
}

// NewPostgresPool configures a PostgreSQL pool and verifies connectivity.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
