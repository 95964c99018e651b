package sandbox

import (
	"strconv"
	"time"
)

// killGrace is how long the executor waits past Timeout before it kills the
// process. The sandbox's own wall-clock limit (Timeout+1) sits in between.
const killGrace = 2 * time.Second

// Config holds the limits and command lines for one executor.
type Config struct {
	// Timeout is the wall-clock budget in whole seconds. The wrapped program
	// arms its alarm at Timeout-1.
	Timeout int
	// CPUTimeout is the CPU-time rlimit in seconds, enforced by the sandbox.
	CPUTimeout int
	// MemoryMB is the cgroup memory ceiling, enforced by the sandbox.
	MemoryMB int
	// MaxCaptureBytes caps each of stdout and stderr. Zero means no cap.
	MaxCaptureBytes int
	// SandboxCommand is the isolation wrapper and its fixed arguments,
	// e.g. ["nsjail", "--config", "/app/nsjail.cfg"]. Empty runs the
	// interpreter directly.
	SandboxCommand []string
	// Interpreter is the interpreter invocation inside the sandbox.
	Interpreter []string
	// Env is appended to the child's minimal environment (KEY=value).
	Env []string
}

// DefaultConfig mirrors the production deployment.
func DefaultConfig() Config {
	return Config{
		Timeout:         120,
		CPUTimeout:      120,
		MemoryMB:        400,
		MaxCaptureBytes: 8 << 20,
		SandboxCommand:  []string{"nsjail", "--config", "/app/nsjail.cfg"},
		Interpreter:     []string{"magma", "-w", "-n"},
	}
}

// Deadline is the external hard-kill deadline measured from launch.
func (c Config) Deadline() time.Duration {
	return time.Duration(c.Timeout)*time.Second + killGrace
}

// Args returns the full command line: sandbox wrapper, its limits, then the
// interpreter after "--".
func (c Config) Args() []string {
	if len(c.SandboxCommand) == 0 {
		return append([]string(nil), c.Interpreter...)
	}

	args := make([]string, 0, len(c.SandboxCommand)+7+len(c.Interpreter))
	args = append(args, c.SandboxCommand...)
	args = append(args,
		"--time_limit", strconv.Itoa(c.Timeout+1),
		"--cgroup_mem_max", strconv.FormatInt(int64(c.MemoryMB)*1024*1024, 10),
		"--rlimit_cpu", strconv.Itoa(c.CPUTimeout),
		"--",
	)
	return append(args, c.Interpreter...)
}
