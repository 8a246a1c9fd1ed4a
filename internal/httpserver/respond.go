package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/consultease/central/internal/errs"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code string, message string) {
	Respond(w, status, ErrorResponse{Error: code, Message: message})
}

// statusForKind maps an errs.Kind to the HTTP status code named in spec §7.
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindLocked:
		return http.StatusLocked
	case errs.KindBusUnavail:
		return http.StatusServiceUnavailable
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError inspects err for a typed errs.Kind and writes the
// matching stable status code and error string from §7; anything untyped
// is logged and returned as a generic 500 to avoid leaking internals.
func RespondDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *errs.E
	if errors.As(err, &e) {
		RespondError(w, statusForKind(e.Kind), string(e.Kind), e.Message)
		return
	}
	logger.Error("unhandled error", "error", err)
	RespondError(w, http.StatusInternalServerError, "internal", "an internal error occurred")
}
