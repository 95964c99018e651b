// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → decodes requests, writes responses
//	Service (business layer) → admission, execution, parsing, bookkeeping
//	Repository (data layer)  → persists the usage journal
//
// Services take their collaborators as interfaces or small concrete types
// built in cmd/server, so tests can swap the executor and the journal.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/magma-calc/internal/apperror"
	"github.com/sakif/magma-calc/internal/executor"
	"github.com/sakif/magma-calc/internal/gate"
	"github.com/sakif/magma-calc/internal/magma"
	"github.com/sakif/magma-calc/internal/metrics"
	"github.com/sakif/magma-calc/internal/model"
	"github.com/sakif/magma-calc/internal/ratelimit"
)

// MsgSlotsBusy is returned when every execution slot is taken.
const MsgSlotsBusy = "All execution slots busy"

// ExecuteConfig holds the per-request budgets.
type ExecuteConfig struct {
	MaxInputBytes  int
	MaxOutputBytes int
	StderrSignals  []string
}

// ExecuteService turns one code submission into a verdict: admission
// (size, rate, concurrency), execution, transcript parsing, and journaling.
type ExecuteService struct {
	exec    executor.Executor
	limiter *ratelimit.Limiter
	gate    *gate.Gate
	usage   *UsageService
	metrics *metrics.Metrics
	cfg     ExecuteConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecuteService wires the orchestrator. usage and m may be nil.
func NewExecuteService(
	exec executor.Executor,
	limiter *ratelimit.Limiter,
	g *gate.Gate,
	usage *UsageService,
	m *metrics.Metrics,
	cfg ExecuteConfig,
	logger *slog.Logger,
) *ExecuteService {
	return &ExecuteService{
		exec:    exec,
		limiter: limiter,
		gate:    g,
		usage:   usage,
		metrics: m,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Execute admits, runs and parses one submission from clientIP.
//
// Admission failures are returned as *apperror.AppError before anything is
// spawned: TooLarge, then RateLimited, then Unavailable. An oversized
// request does not count against the rate limit; one refused by the gate
// does. Once admitted, every subprocess outcome is reported in the
// response; only a failure to start the interpreter returns an error.
func (s *ExecuteService) Execute(ctx context.Context, clientIP, code string) (*model.ExecuteResponse, error) {
	start := s.now()

	if len(code) > s.cfg.MaxInputBytes {
		s.metrics.Reject(metrics.ReasonTooLarge)
		return nil, apperror.TooLarge("Input", s.cfg.MaxInputBytes)
	}

	if retryAfter, ok := s.limiter.Allow(clientIP); !ok {
		s.metrics.Reject(metrics.ReasonRateLimited)
		s.logger.Info("rate limited", "client_ip", clientIP, "retry_after", retryAfter)
		return nil, apperror.RateLimited(retryAfter)
	}

	release, ok := s.gate.TryAcquire()
	if !ok {
		s.metrics.Reject(metrics.ReasonBusy)
		s.logger.Info("execution slots busy", "client_ip", clientIP, "slots", s.gate.Size())
		return nil, apperror.Unavailable(MsgSlotsBusy)
	}
	result, err := func() (*executor.ExecutionResult, error) {
		defer release()
		defer s.metrics.Started()()
		return s.exec.Execute(ctx, executor.ExecutionRequest{Code: code})
	}()
	if err != nil {
		return nil, fmt.Errorf("executing code: %w", err)
	}

	resp := s.verdict(result)

	elapsed := s.now().Sub(start)
	outcome := metrics.OutcomeSuccess
	switch {
	case result.Killed():
		outcome = metrics.OutcomeKilled
	case !resp.Success:
		outcome = metrics.OutcomeFailure
	}
	s.metrics.ObserveExecution(outcome, result.Duration)

	entry := &model.UsageEntry{
		ID:         xid.New().String(),
		Timestamp:  start.UTC().Truncate(time.Second),
		ClientIP:   clientIP,
		InputSize:  utf8.RuneCountInString(code),
		ElapsedSec: roundMillis(elapsed.Seconds()),
		MemoryUsed: resp.Magma.Memory,
		Success:    resp.Success,
		Warnings:   resp.Warnings,
	}
	s.logger.Info("execution finished",
		"id", entry.ID,
		"client_ip", entry.ClientIP,
		"input_size", entry.InputSize,
		"elapsed_sec", entry.ElapsedSec,
		"exit_code", result.ExitCode,
		"outcome", outcome,
		"warnings", len(entry.Warnings),
	)
	if s.usage != nil {
		s.usage.Record(context.WithoutCancel(ctx), entry)
	}

	return resp, nil
}

// verdict combines the transcript and stderr scans into the response. The
// run succeeds only when the exit code is zero and neither scan produced a
// warning. Error carries the first stderr warning, else the first transcript
// warning.
func (s *ExecuteService) verdict(result *executor.ExecutionResult) *model.ExecuteResponse {
	parsed := magma.Parse(result.Stdout, s.cfg.MaxOutputBytes)
	stderrWarnings := magma.ParseStderrWarnings(result.Stderr, s.cfg.StderrSignals)

	warnings := make([]string, 0, len(parsed.Warnings)+len(stderrWarnings))
	warnings = append(warnings, parsed.Warnings...)
	warnings = append(warnings, stderrWarnings...)

	resp := &model.ExecuteResponse{
		Success:   result.ExitCode == 0 && len(warnings) == 0,
		Stdout:    parsed.Body,
		ExitCode:  result.ExitCode,
		Truncated: parsed.Truncated,
		Magma: model.MagmaInfo{
			Version: parsed.Version,
			Seed:    parsed.Seed,
			TimeSec: parsed.TimeSec,
			Memory:  parsed.Memory,
		},
		Warnings: warnings,
	}

	if !resp.Success {
		switch {
		case len(stderrWarnings) > 0:
			resp.Error = stderrWarnings[0]
		case len(parsed.Warnings) > 0:
			resp.Error = parsed.Warnings[0]
		}
	}

	return resp
}
