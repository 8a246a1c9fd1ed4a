// Package audit implements ConsultEase's async, buffered audit trail: every
// admin action, RFID scan, and consultation lifecycle event is appended as
// an audit record without blocking its caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome classifies the result of the audited action, per §3's AuditRecord.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// Entry is a single audit record to be written.
type Entry struct {
	Actor      string
	Action     string
	Subject    string
	Detail     json.RawMessage
	Outcome    Outcome
	SourceAddr string
	Timestamp  time.Time
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine in batches, never
// blocking the caller.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the
// database and returns immediately; Close stops the goroutine and waits for
// pending entries to be flushed.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close stops accepting new entries and waits for all pending entries to flush.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing with outcome=success and no
// source address. It never blocks the caller; if the buffer is full the
// entry is dropped and a warning logged.
func (w *Writer) Log(actor, action, subject string, detail json.RawMessage) {
	w.LogOutcome(actor, action, subject, OutcomeSuccess, "", detail)
}

// LogOutcome enqueues an audit entry carrying an explicit outcome and
// optional source address, used by the auth manager for failed/locked
// login attempts and by the consultation engine for dispatch-exhaustion
// warnings.
func (w *Writer) LogOutcome(actor, action, subject string, outcome Outcome, sourceAddr string, detail json.RawMessage) {
	entry := Entry{
		Actor: actor, Action: action, Subject: subject, Detail: detail,
		Outcome: outcome, SourceAddr: sourceAddr, Timestamp: time.Now(),
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", action, "subject", subject)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Error("acquiring connection for audit flush", "error", err)
		return
	}
	defer conn.Release()

	for _, e := range entries {
		outcome := e.Outcome
		if outcome == "" {
			outcome = OutcomeSuccess
		}
		_, err := conn.Exec(ctx,
			`INSERT INTO audit_records (actor, action, subject, detail, outcome, source_addr, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.Actor, e.Action, nullableString(e.Subject), e.Detail, outcome, nullableString(e.SourceAddr), e.Timestamp)
		if err != nil {
			w.logger.Error("writing audit record", "error", err, "action", e.Action, "subject", e.Subject)
		}
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Detailf is a convenience helper building a JSON detail blob from key/value
// pairs for call sites that don't already have a struct to marshal.
func Detailf(kv map[string]any) json.RawMessage {
	buf, err := json.Marshal(kv)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return buf
}
