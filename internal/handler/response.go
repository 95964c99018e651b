package handler

// RESPONSE HELPERS:
// Every error response has the same shape:
//
//	{"error": "Rate limit exceeded", "type": "rate_limited"}
//
// "error" is the human-readable message clients display; "type" is the
// stable machine-readable category.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/sakif/magma-calc/internal/apperror"
)

// ErrorResponse is the error format returned by all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`          // Human-readable description
	Type  string `json:"type,omitempty"` // Machine-readable category (e.g. "rate_limited")
	Field string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code. Headers must
// be set before WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it.
//
//	ErrValidation   → 422
//	ErrTooLarge     → 413
//	ErrRateLimited  → 429 + Retry-After (whole seconds)
//	ErrUnavailable  → 503
//	ErrUnauthorized → 401
//	ErrNotFound     → 404
//	anything else   → 500 with a generic message
//
// The service layer never sees status codes; this is the only place they
// are chosen.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Raw errors may carry paths or command lines; never echo them.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "An internal error occurred",
			Type:  "internal_error",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusUnprocessableEntity
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrTooLarge):
		status = http.StatusRequestEntityTooLarge
		errorType = "too_large"
	case errors.Is(err, apperror.ErrRateLimited):
		status = http.StatusTooManyRequests
		errorType = "rate_limited"
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(appErr)))
	case errors.Is(err, apperror.ErrUnavailable):
		status = http.StatusServiceUnavailable
		errorType = "unavailable"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		errorType = "unauthorized"
		w.Header().Set("WWW-Authenticate", `Bearer realm="magma-calc"`)
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	}

	writeJSON(w, status, ErrorResponse{
		Error: appErr.Message,
		Type:  errorType,
		Field: appErr.Field,
	})
}

// retryAfterSeconds rounds the back-off up to whole seconds, at least 1.
func retryAfterSeconds(e *apperror.AppError) int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
