package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tally/internal/core"
	tallylog "tally/internal/log"
)

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// statusFor maps the ledger error taxonomy to an HTTP status and error type.
func statusFor(err error) (int, string) {
	var insufficient *core.InsufficientFundsError
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, tallylog.ErrorTypeValidation
	case errors.Is(err, core.ErrTransactionNotFound):
		return http.StatusNotFound, tallylog.ErrorTypeNotFound
	case errors.Is(err, core.ErrTransactionConflict), errors.Is(err, core.ErrDuplicateTransaction),
		errors.Is(err, core.ErrBalanceOverwrite):
		return http.StatusConflict, tallylog.ErrorTypeConflict
	case errors.Is(err, core.ErrReference), errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, tallylog.ErrorTypeReference
	default:
		return http.StatusInternalServerError, tallylog.ErrorTypeInternal
	}
}

// writeError logs err at a level matching its status and writes it as JSON.
// Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := statusFor(err)
	logger := tallylog.FromContext(r.Context())
	fields := tallylog.NewFields().WithOperation(op).WithError(err)
	fields[tallylog.FieldErrorType] = errType

	body := errorResponse{Error: err.Error(), Type: errType}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}

	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		body.Error = "internal error"
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	writeJSON(w, status, body)
}
