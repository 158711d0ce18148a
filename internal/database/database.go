// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schema string

const connectAttempts = 5

// connectDelay is the pause between connect attempts.
var connectDelay = 2 * time.Second

// NewPool creates and validates a pgxpool connection pool.
// It retries a few times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log logrus.FieldLogger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	attempt := 0
	pool, err := backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		attempt++
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(connectDelay)),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     connectAttempts,
				"retry":   next.String(),
			}).WithError(err).Warn("db connect attempt failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
