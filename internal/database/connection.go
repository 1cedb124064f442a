package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "reposcout"

type Config struct {
	URL             string
	MaxConns        int32
	MaxConnLifetime time.Duration
	// ConnectAttempts bounds the startup ping loop. Compose brings Postgres
	// up next to the daemon, so the first pings may be refused.
	ConnectAttempts int
	// StatementTimeout caps any single query. Zero leaves the server default.
	StatementTimeout time.Duration
}

// NewPool opens a pool and waits until Postgres answers a ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	params := poolConfig.ConnConfig.RuntimeParams
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := waitReady(ctx, pool, cfg.ConnectAttempts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitReady(ctx context.Context, pool *pgxpool.Pool, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	delay := 500 * time.Millisecond
	var err error
	for i := 1; i <= attempts; i++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Printf("database: not ready (attempt %d/%d): %v", i, attempts, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, 8*time.Second)
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}
