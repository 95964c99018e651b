// Package handler contains the HTTP handlers. Handlers decode requests, call
// a service and encode the result; the business rules live in the service
// package and status codes are chosen only in writeError.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/magma-calc/internal/apperror"
	"github.com/sakif/magma-calc/internal/model"
)

// bodyOverhead is the room left in the request body for the JSON envelope
// around the code.
const bodyOverhead = 1024

// Executor is the slice of service.ExecuteService the handler needs.
type Executor interface {
	Execute(ctx context.Context, clientIP, code string) (*model.ExecuteResponse, error)
}

// ExecuteHandler handles POST /execute.
type ExecuteHandler struct {
	svc      Executor
	maxInput int
	logger   *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler. maxInput is the code byte
// budget; the request body may be larger to allow for JSON escaping.
func NewExecuteHandler(svc Executor, maxInput int, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		svc:      svc,
		maxInput: maxInput,
		logger:   logger,
	}
}

// HandleExecute decodes {"code": "..."} and returns the execution verdict.
//
// A body that is not JSON, or lacks a string "code", is a 422. A body far
// beyond the input budget is cut off while reading and reported as 413; the
// exact budget is enforced by the service on the decoded code.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	// A JSON string escapes each byte to at most six ("\u00XX").
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxInput)*6+bodyOverhead)

	var req model.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, apperror.TooLarge("Input", h.maxInput))
			return
		}
		h.logger.Debug("invalid execute request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("code", "Request body must be a JSON object with a string \"code\" field"))
		return
	}
	if req.Code == nil {
		writeError(w, apperror.ValidationFailed("code", "Field \"code\" is required"))
		return
	}

	clientIP := ClientIP(r)
	resp, err := h.svc.Execute(r.Context(), clientIP, *req.Code)
	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			h.logger.Error("execution failed",
				slog.String("client_ip", clientIP),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ClientIP returns the host part of r.RemoteAddr, which chi's RealIP
// middleware has already replaced with the forwarded address when present.
func ClientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP stores a bare address without a port.
		return r.RemoteAddr
	}
	return host
}
