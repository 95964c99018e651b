// Package executor defines the contract between the request orchestrator and
// whatever runs untrusted Magma code.
package executor

import (
	"context"
	"time"
)

// Sentinel values reported when the executor had to kill the process after
// its deadline. Real exit codes are never negative (see sandbox.exitCodeOf).
const (
	ExitCodeKilled = -1
	StderrKilled   = "Killed"
)

// ExecutionRequest represents a request to execute Magma code.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult is the raw outcome of one run.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Killed reports whether the result is the forced-termination sentinel.
func (r *ExecutionResult) Killed() bool {
	return r.ExitCode == ExitCodeKilled
}

// Executor runs code in an isolated environment.
//
// Implementations report every subprocess-level outcome (non-zero exit, crash,
// timeout) through the result. The error return is reserved for failures to
// start the process at all.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
