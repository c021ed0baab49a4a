// Package tools is the dispatcher: a registry of typed tools with tier
// enforcement, input validation, a confirmation gate for destructive
// operations, and a uniform response envelope on every path.
package tools

import (
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/errors"
)

// Envelope is the only response contract. Every tool call, success or
// failure, returns one.
type Envelope struct {
	OK            bool   `json:"ok"`
	Data          any    `json:"data,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// Success wraps data in a successful envelope.
func Success(correlationID string, data any) Envelope {
	return Envelope{OK: true, Data: data, CorrelationID: correlationID}
}

// Failure translates an error into a failure envelope. Internal errors
// get a generic message; callers never see stack traces or wrapped
// causes.
func Failure(correlationID string, err error) Envelope {
	kind := errors.KindInternal
	message := "an internal error occurred"

	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		kind = appErr.Kind
		if kind != errors.KindInternal {
			message = appErr.Message
			if appErr.Field != "" {
				message = appErr.Field + ": " + message
			}
		}
	}
	if kind == errors.KindInternal {
		slog.Error("tool call failed", "error", err, "correlation_id", correlationID)
	}
	return Envelope{
		OK:            false,
		Error:         message,
		Code:          string(kind),
		CorrelationID: correlationID,
	}
}

// newCorrelationID returns a short id for response and log correlation.
func newCorrelationID() string {
	return uuid.NewString()[:8]
}
