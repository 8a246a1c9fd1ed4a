// Package persistence is the storage layer for ConsultEase's core entities:
// students, faculty, consultations, admins, and audit records. It wraps a
// pgxpool.Pool with bounded sizing, liveness checks, and degraded-mode
// recovery, and exposes typed stores built on raw SQL rather than generated
// code (the corpus's sqlc output was not part of the retrieval pack).
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consultease/central/internal/config"
	"github.com/consultease/central/internal/errs"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, mirroring the
// sqlc-generated DBTX interface the teacher's stores are built against, so
// every store in this package can run unchanged inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool owns the connection pool and recovery state.
type Pool struct {
	pool *pgxpool.Pool
	cfg  config.DatabaseConfig
}

// NewPool opens a bounded pgxpool connection pool sized from cfg and
// verifies liveness with a ping before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errs.Wrap(errs.KindFatal, "config_parse", fmt.Errorf("parsing database DSN: %w", err))
	}
	poolCfg.MaxConns = int32(cfg.PoolSize + cfg.PoolOverflow)
	poolCfg.MinConns = int32(min(cfg.PoolSize, 2))
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "pool_create", fmt.Errorf("creating connection pool: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.KindTransient, "pool_ping", fmt.Errorf("pinging database: %w", err))
	}

	return &Pool{pool: pool, cfg: cfg}, nil
}

// Raw exposes the underlying pgxpool.Pool for stores in this package.
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// Close disposes of all pooled connections.
func (p *Pool) Close() { p.pool.Close() }

// Recover disposes the current pool and opens a fresh one, used when the
// pool has entered a degraded state (repeated connection acquisition
// failures) that a simple retry would not fix.
func (p *Pool) Recover(ctx context.Context) error {
	p.pool.Close()
	fresh, err := NewPool(ctx, p.cfg)
	if err != nil {
		return err
	}
	p.pool = fresh.pool
	return nil
}

// Ping verifies the pool is currently reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
