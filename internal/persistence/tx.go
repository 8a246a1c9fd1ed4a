package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/consultease/central/internal/errs"
)

// retryableTxBackoff is the delay schedule for transactions that fail on a
// serialization or deadlock conflict, bounded at three retries (four
// attempts in all).
var retryableTxBackoff = []time.Duration{10 * time.Millisecond, 40 * time.Millisecond, 120 * time.Millisecond}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error. Postgres serialization/deadlock failures (SQLSTATE 40001,
// 40P01) are retried with backoff; all other errors propagate immediately.
func WithTx(ctx context.Context, p *Pool, fn func(tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt <= len(retryableTxBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryableTxBackoff[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		tx, err := p.Raw().Begin(ctx)
		if err != nil {
			return errs.Wrap(errs.KindTransient, "tx_begin", fmt.Errorf("beginning transaction: %w", err))
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isRetryable(err) {
				lastErr = err
				continue
			}
			return errs.Wrap(errs.KindTransient, "tx_commit", fmt.Errorf("committing transaction: %w", err))
		}
		return nil
	}
	return errs.Wrap(errs.KindTransient, "tx_retries_exhausted", fmt.Errorf("transaction retries exhausted: %w", lastErr))
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
