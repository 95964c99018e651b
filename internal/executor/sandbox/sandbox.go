// Package sandbox runs Magma programs as child processes under an external
// isolation wrapper (nsjail in production).
//
// TWO DEADLINES:
// Every run is bounded twice. The wrapped program arms Alarm(Timeout-1) so the
// interpreter can stop itself and still print its footer. Independently, the
// executor kills the whole process group at Timeout+2 seconds after launch,
// which holds even when the alarm never fires.
//
// The program text is piped on stdin, so user code never appears in the
// process table and there are no temporary files to clean up.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sakif/magma-calc/internal/executor"
)

// waitDelay bounds how long Wait keeps draining pipes after the kill, in case
// something outside the process group inherited them.
const waitDelay = time.Second

var _ executor.Executor = (*Executor)(nil)

// Executor implements executor.Executor with one OS process per call.
// It holds no per-call state, so a single Executor serves concurrent requests.
type Executor struct {
	config Config
	logger *slog.Logger
}

// New creates an Executor. The config is copied.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if cfg.Timeout < 2 {
		return nil, fmt.Errorf("sandbox: timeout must be at least 2 seconds, got %d", cfg.Timeout)
	}
	if len(cfg.Interpreter) == 0 {
		return nil, errors.New("sandbox: interpreter command is empty")
	}
	if len(cfg.SandboxCommand) == 0 {
		logger.Warn("no sandbox command configured, the interpreter will run unisolated")
	}
	return &Executor{config: cfg, logger: logger}, nil
}

// Config returns the executor's configuration.
func (e *Executor) Config() Config {
	return e.config
}

// Execute wraps req.Code, runs it and returns the captured output.
//
// Cancelling ctx does not stop a running program; only the deadline does.
// Execute never returns while the child is still alive.
func (e *Executor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	args := e.config.Args()
	program := Wrap(req.Code, e.config.Timeout)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Deadline())
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(program)
	cmd.Env = e.buildEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = newCappedWriter(&stdout, e.config.MaxCaptureBytes)
	cmd.Stderr = newCappedWriter(&stderr, e.config.MaxCaptureBytes)

	// The child leads its own process group so the kill reaches everything
	// it spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var killed atomic.Bool
	cmd.Cancel = func() error {
		err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		if err == nil {
			killed.Store(true)
		}
		return err
	}
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandbox: starting %s: %w", args[0], err)
	}

	e.logger.Debug("sandbox process started",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("input_bytes", len(program)),
		slog.Duration("deadline", e.config.Deadline()),
	)

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if killed.Load() {
		e.logger.Warn("sandbox process killed after deadline",
			slog.Duration("deadline", e.config.Deadline()),
			slog.Duration("duration", duration),
		)
		return &executor.ExecutionResult{
			Stdout:   "",
			Stderr:   executor.StderrKilled,
			ExitCode: executor.ExitCodeKilled,
			Duration: duration,
		}, nil
	}

	if cmd.ProcessState == nil {
		// Wait failed before the child was reaped; nothing sensible to report.
		return nil, fmt.Errorf("sandbox: waiting for process: %w", waitErr)
	}
	if waitErr != nil && !isExitError(waitErr) {
		e.logger.Warn("sandbox output collection incomplete", slog.String("error", waitErr.Error()))
	}

	exitCode := exitCodeOf(cmd.ProcessState)
	e.logger.Debug("sandbox process finished",
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdout.Len()),
		slog.Int("stderr_bytes", stderr.Len()),
	)

	return &executor.ExecutionResult{
		Stdout:   strings.ToValidUTF8(stdout.String(), "\uFFFD"),
		Stderr:   strings.ToValidUTF8(stderr.String(), "\uFFFD"),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// buildEnv gives the child a minimal environment; nothing is inherited from
// the server process.
func (e *Executor) buildEnv() []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + os.TempDir(),
		"LANG=C.UTF-8",
		"TERM=dumb",
	}
	return append(env, e.config.Env...)
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// exitCodeOf maps a finished process to a non-negative exit code.
// A signal death reports 128+signal, the shell convention, so that the
// negative range stays reserved for executor.ExitCodeKilled.
func exitCodeOf(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	if code := state.ExitCode(); code > 0 {
		return code
	}
	return 0
}

// cappedWriter stops storing after a byte limit. Excess data is discarded
// without error so the child never blocks on a full pipe.
type cappedWriter struct {
	w         io.Writer
	remaining int
	unlimited bool
}

func newCappedWriter(w io.Writer, limit int) *cappedWriter {
	return &cappedWriter{w: w, remaining: limit, unlimited: limit <= 0}
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	if cw.unlimited {
		return cw.w.Write(p)
	}
	if cw.remaining <= 0 {
		return len(p), nil
	}
	n := len(p)
	if n > cw.remaining {
		p = p[:cw.remaining]
	}
	written, err := cw.w.Write(p)
	cw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
