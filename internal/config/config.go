// Package config provides the service configuration.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CONFIG_FILE, ./config.yaml, /etc/magma-calc/config.yaml)
//  3. Environment variables (a .env file is honoured, see cmd/server)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"fmt"
	"strings"

	"github.com/google/shlex"

	"github.com/sakif/magma-calc/internal/executor/sandbox"
	"github.com/sakif/magma-calc/internal/magma"
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Magma   MagmaConfig   `yaml:"magma"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Limits  LimitsConfig  `yaml:"limits"`
	Usage   UsageConfig   `yaml:"usage"`
	Stats   StatsConfig   `yaml:"stats"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int    `yaml:"port"`           // default: 8080
	AllowedOrigin string `yaml:"allowed_origin"` // comma separated, default: "*"
	TLSCertFile   string `yaml:"tls_cert_file"`  // TLS is used only when both files exist
	TLSKeyFile    string `yaml:"tls_key_file"`
}

// MagmaConfig holds the per-execution limits.
type MagmaConfig struct {
	Timeout       int      `yaml:"timeout"`        // seconds, default: 120
	CPUTimeout    int      `yaml:"cpu_timeout"`    // seconds, default: 120
	MemoryMB      int      `yaml:"memory_mb"`      // default: 400
	InputKB       int      `yaml:"input_kb"`       // default: 50
	OutputKB      int      `yaml:"output_kb"`      // default: 20
	CaptureKB     int      `yaml:"capture_kb"`     // per stream, default: 8192
	Command       string   `yaml:"command"`        // default: "magma -w -n"
	StderrSignals []string `yaml:"stderr_signals"` // substrings meaning "stopped by a time limit"
}

// SandboxConfig holds the isolation wrapper invocation.
type SandboxConfig struct {
	Command string   `yaml:"command"` // default: "nsjail --config /app/nsjail.cfg"; empty runs unisolated
	Env     []string `yaml:"env"`     // KEY=value pairs added to the child environment
}

// LimitsConfig holds admission control settings.
type LimitsConfig struct {
	MaxConcurrent      int `yaml:"max_concurrent"`        // default: 4
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"` // default: 30
	RateLimitPerHour   int `yaml:"rate_limit_per_hour"`   // default: 200
}

// UsageConfig holds usage journal settings.
type UsageConfig struct {
	Store string `yaml:"store"` // "jsonl" or "sqlite", default: "jsonl"
	Path  string `yaml:"path"`  // default: "/data/usage.jsonl"
}

// StatsConfig protects GET /stats. An empty secret leaves it public.
type StatsConfig struct {
	TokenSecret     string `yaml:"token_secret"`
	TokenSecretFile string `yaml:"token_secret_file"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
}

// Defaults returns a Config with all built-in defaults applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:          8080,
			AllowedOrigin: "*",
		},
		Magma: MagmaConfig{
			Timeout:       120,
			CPUTimeout:    120,
			MemoryMB:      400,
			InputKB:       50,
			OutputKB:      20,
			CaptureKB:     8192,
			Command:       "magma -w -n",
			StderrSignals: append([]string(nil), magma.DefaultStderrSignals...),
		},
		Sandbox: SandboxConfig{
			Command: "nsjail --config /app/nsjail.cfg",
		},
		Limits: LimitsConfig{
			MaxConcurrent:      4,
			RateLimitPerMinute: 30,
			RateLimitPerHour:   200,
		},
		Usage: UsageConfig{
			Store: "jsonl",
			Path:  "/data/usage.jsonl",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// InputBytes is the largest accepted code submission.
func (c *Config) InputBytes() int {
	return c.Magma.InputKB * 1024
}

// OutputBytes is the largest body returned to a client.
func (c *Config) OutputBytes() int {
	return c.Magma.OutputKB * 1024
}

// AllowedOrigins splits Server.AllowedOrigin on commas.
func (c *Config) AllowedOrigins() []string {
	parts := strings.Split(c.Server.AllowedOrigin, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// Executor converts the configuration into the sandbox executor's config.
func (c *Config) Executor() (sandbox.Config, error) {
	interpreter, err := shlex.Split(c.Magma.Command)
	if err != nil {
		return sandbox.Config{}, fmt.Errorf("magma.command: %w", err)
	}
	wrapper, err := shlex.Split(c.Sandbox.Command)
	if err != nil {
		return sandbox.Config{}, fmt.Errorf("sandbox.command: %w", err)
	}
	return sandbox.Config{
		Timeout:         c.Magma.Timeout,
		CPUTimeout:      c.Magma.CPUTimeout,
		MemoryMB:        c.Magma.MemoryMB,
		MaxCaptureBytes: c.Magma.CaptureKB * 1024,
		SandboxCommand:  wrapper,
		Interpreter:     interpreter,
		Env:             append([]string(nil), c.Sandbox.Env...),
	}, nil
}
