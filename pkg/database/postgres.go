// Package database wraps the Postgres connection pool and migration runner
// used as the engine's store. SQLite busy-timeout handling in the original
// implementation is reinterpreted here as pgx SQLSTATE retry classification
// (see IsLockContention) plus periodic CHECKPOINT (see Checkpoint).
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/logging"
	"github.com/doctrail-go/enrichment-engine/pkg/retry"
)

// connectRetryConfig implements spec.md §4.3's retry policy for transient
// lock/open errors: exponential backoff starting at 2s, doubling, capped at
// 6s, with 3 retries after the first attempt (4 attempts in all).
func connectRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     6 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// DB wraps a pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewConnection creates a new database connection pool.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	logger.Info("connecting to database", zap.String("dsn", logging.SanitizeConnectionString(cfg.URL)))

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 25
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	pool, err := retry.DoWithResult(ctx, connectRetryConfig(), func() (*pgxpool.Pool, error) {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		return p, nil
	})
	if err != nil {
		logger.Warn("database connection failed after retries", zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// Checkpoint issues a Postgres CHECKPOINT. The engine calls this every
// ~1000 processed rows, mirroring the original SQLite WAL checkpoint
// cadence. Failure is non-fatal: a missed checkpoint only delays buffer
// flush, it never loses committed data.
func (db *DB) Checkpoint(ctx context.Context) {
	if _, err := db.Pool.Exec(ctx, "CHECKPOINT"); err != nil {
		db.logger.Warn("checkpoint failed", zap.Error(err))
	}
}

// IsLockContention reports whether err is a transient Postgres lock or
// serialization conflict that is safe to retry: 55P03 (lock_not_available)
// or 40001 (serialization_failure). These are the Postgres analogues of
// SQLite's "database is locked" condition.
func IsLockContention(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "55P03", "40001":
		return true
	default:
		return false
	}
}

// lockRetryConfig implements spec.md §4.3's retry policy for transient lock
// contention on Store writes: 3 retries after the first attempt (4 attempts
// in all), waiting 2s, 4s, 6s between them.
func lockRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     6 * time.Second,
		Multiplier:   2.0,
	}
}

// WithLockRetry runs fn, retrying under spec.md §4.3's policy whenever fn
// fails with a transient Postgres lock or serialization conflict
// (IsLockContention). Any other error, or exhaustion of the retry budget,
// is returned as-is. Store writers (pkg/outputstore, pkg/audit,
// pkg/promptregistry) wrap every per-row Exec/QueryRow through this so the
// two concurrent DB-semaphore writers of spec.md §5 don't error a row on a
// 40001 serialization_failure that a retry would have resolved.
func (db *DB) WithLockRetry(ctx context.Context, fn func() error) error {
	return retry.DoIfRetryableFunc(ctx, lockRetryConfig(), IsLockContention, fn)
}
