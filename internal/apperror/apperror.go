// Package apperror defines the domain errors shared by the service and HTTP layers.
//
// The service layer returns these errors; only the handler package knows how
// they translate into HTTP status codes. errors.Is works through AppError
// because AppError unwraps to its sentinel.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrTooLarge     = errors.New("too large")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

type AppError struct {
	Err        error         // sentinel, one of the Err* values above
	Message    string        // Human-readable error message
	Field      string        // Optional: field causing the error
	RetryAfter time.Duration // Optional: how long the client should back off
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// TooLarge reports an input that exceeds its byte budget.
func TooLarge(what string, limit int) *AppError {
	return &AppError{
		Err:     ErrTooLarge,
		Message: fmt.Sprintf("%s too large (limit %d bytes)", what, limit),
	}
}

// RateLimited reports that the caller exhausted its request quota.
// retryAfter is surfaced to HTTP clients as the Retry-After header.
func RateLimited(retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Unavailable reports that no execution slot is free right now.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// NotFound reports an unknown route or resource.
func NotFound(what string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", what),
	}
}
