package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/shlex"
)

// Validate checks the configuration for values the service cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Magma.Timeout < 2 {
		errs = append(errs, fmt.Errorf("magma.timeout must be at least 2 seconds, got %d", c.Magma.Timeout))
	}
	positive := map[string]int{
		"magma.cpu_timeout":     c.Magma.CPUTimeout,
		"magma.memory_mb":       c.Magma.MemoryMB,
		"magma.input_kb":        c.Magma.InputKB,
		"magma.output_kb":       c.Magma.OutputKB,
		"limits.max_concurrent": c.Limits.MaxConcurrent,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.Magma.CaptureKB < 0 {
		errs = append(errs, fmt.Errorf("magma.capture_kb must not be negative, got %d", c.Magma.CaptureKB))
	}
	if c.Limits.RateLimitPerMinute < 0 || c.Limits.RateLimitPerHour < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}

	if args, err := shlex.Split(c.Magma.Command); err != nil {
		errs = append(errs, fmt.Errorf("magma.command: %w", err))
	} else if len(args) == 0 {
		errs = append(errs, errors.New("magma.command is required"))
	}
	if _, err := shlex.Split(c.Sandbox.Command); err != nil {
		errs = append(errs, fmt.Errorf("sandbox.command: %w", err))
	}

	switch c.Usage.Store {
	case "jsonl", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("usage.store must be \"jsonl\" or \"sqlite\", got %q", c.Usage.Store))
	}
	if c.Usage.Path == "" {
		errs = append(errs, errors.New("usage.path is required"))
	}

	if c.Stats.TokenSecret != "" && len(c.Stats.TokenSecret) < 16 {
		errs = append(errs, errors.New("stats.token_secret must be at least 16 characters"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
