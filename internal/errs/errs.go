// Package errs defines the typed error kinds that flow between ConsultEase
// components. Leaf components return these; the coordinator and HTTP layer
// translate them into stable codes for callers (kiosk, admin dashboard).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	KindValidation   Kind = "validation"   // caller-visible, never retried
	KindNotFound     Kind = "not_found"    // caller-visible
	KindConflict     Kind = "conflict"     // uniqueness/state machine violation
	KindUnauthorized Kind = "unauthorized"
	KindLocked       Kind = "locked"
	KindTransient    Kind = "transient"       // retried with backoff
	KindBusUnavail   Kind = "bus_unavailable" // degraded: persist intent, publish later
	KindFatal        Kind = "fatal"           // initiates shutdown
)

// E is a typed error carrying a Kind and a stable code for the HTTP/kiosk layer.
type E struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *E) Unwrap() error { return e.Err }

// New creates a typed error of the given kind.
func New(kind Kind, code, message string) *E {
	return &E{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a kind and code to an underlying error.
func Wrap(kind Kind, code string, err error) *E {
	return &E{Kind: kind, Code: code, Message: err.Error(), Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindFatal for untyped errors.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Locked builds a typed lockout error carrying remaining seconds until unlock.
func Locked(remainingSeconds int64) *E {
	return &E{
		Kind:    KindLocked,
		Code:    "locked",
		Message: fmt.Sprintf("account locked, retry in %ds", remainingSeconds),
	}
}
