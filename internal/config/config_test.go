package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// isolate keeps the developer's environment out of Load.
func isolate(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"CONFIG_FILE", "PORT", "MAGMA_TIMEOUT", "MAGMA_CPU_TIMEOUT", "MAGMA_MEMORY_MB",
		"MAGMA_INPUT_KB", "MAGMA_OUTPUT_KB", "MAGMA_CAPTURE_KB", "MAX_CONCURRENT",
		"RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_PER_HOUR", "ALLOWED_ORIGIN", "TLS_CERT_FILE",
		"TLS_KEY_FILE", "MAGMA_COMMAND", "USAGE_STORE", "USAGE_LOG_FILE", "STATS_TOKEN_SECRET",
		"STATS_TOKEN_SECRET_FILE", "LOG_LEVEL", "LOG_FORMAT", "STDERR_SIGNALS", "METRICS_ENABLED",
	} {
		t.Setenv(name, "")
	}
	// SANDBOX_COMMAND is presence-sensitive; unset it for the test.
	if old, ok := os.LookupEnv("SANDBOX_COMMAND"); ok {
		os.Unsetenv("SANDBOX_COMMAND")
		t.Cleanup(func() { os.Setenv("SANDBOX_COMMAND", old) })
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	checks := []struct {
		name      string
		got, want int
	}{
		{"magma.timeout", cfg.Magma.Timeout, 120},
		{"magma.cpu_timeout", cfg.Magma.CPUTimeout, 120},
		{"magma.memory_mb", cfg.Magma.MemoryMB, 400},
		{"magma.input_kb", cfg.Magma.InputKB, 50},
		{"magma.output_kb", cfg.Magma.OutputKB, 20},
		{"limits.max_concurrent", cfg.Limits.MaxConcurrent, 4},
		{"server.port", cfg.Server.Port, 8080},
		{"limits.rate_limit_per_minute", cfg.Limits.RateLimitPerMinute, 30},
		{"limits.rate_limit_per_hour", cfg.Limits.RateLimitPerHour, 200},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("default %s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if cfg.Usage.Store != "jsonl" {
		t.Errorf("default usage.store = %q, want \"jsonl\"", cfg.Usage.Store)
	}
	if cfg.InputBytes() != 50*1024 || cfg.OutputBytes() != 20*1024 {
		t.Errorf("byte budgets = %d/%d", cfg.InputBytes(), cfg.OutputBytes())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	isolate(t)

	yamlContent := `
server:
  port: 9090
  allowed_origin: "https://magma-maths.org, http://localhost"
magma:
  timeout: 300
  memory_mb: 800
  command: "/opt/magma/magma -w -n"
  stderr_signals: ["Alarm clock"]
sandbox:
  command: ""
limits:
  max_concurrent: 2
usage:
  store: sqlite
  path: /var/lib/magma-calc/usage.db
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Magma.Timeout != 300 || cfg.Magma.MemoryMB != 800 {
		t.Errorf("magma = %+v", cfg.Magma)
	}
	if cfg.Magma.CPUTimeout != 120 {
		t.Errorf("magma.cpu_timeout = %d, want the default to survive", cfg.Magma.CPUTimeout)
	}
	if cfg.Limits.MaxConcurrent != 2 {
		t.Errorf("limits.max_concurrent = %d, want 2", cfg.Limits.MaxConcurrent)
	}
	if want := []string{"https://magma-maths.org", "http://localhost"}; !reflect.DeepEqual(cfg.AllowedOrigins(), want) {
		t.Errorf("AllowedOrigins() = %v, want %v", cfg.AllowedOrigins(), want)
	}

	exec, err := cfg.Executor()
	if err != nil {
		t.Fatalf("Executor() error = %v", err)
	}
	if len(exec.SandboxCommand) != 0 {
		t.Errorf("sandbox command = %v, want none", exec.SandboxCommand)
	}
	if strings.Join(exec.Interpreter, "|") != "/opt/magma/magma|-w|-n" {
		t.Errorf("interpreter = %v", exec.Interpreter)
	}
	if exec.Timeout != 300 || exec.MemoryMB != 800 {
		t.Errorf("executor config = %+v", exec)
	}
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MAGMA_TIMEOUT", "300")
	t.Setenv("MAGMA_MEMORY_MB", "800")
	t.Setenv("ALLOWED_ORIGIN", "https://example.com")
	t.Setenv("STDERR_SIGNALS", "Alarm clock, time limit hit")
	t.Setenv("SANDBOX_COMMAND", `nsjail --config "/etc/nsjail/magma cfg"`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Magma.Timeout != 300 {
		t.Errorf("magma.timeout = %d, want 300", cfg.Magma.Timeout)
	}
	if cfg.Magma.MemoryMB != 800 {
		t.Errorf("magma.memory_mb = %d, want 800", cfg.Magma.MemoryMB)
	}
	if cfg.Server.AllowedOrigin != "https://example.com" {
		t.Errorf("allowed_origin = %q", cfg.Server.AllowedOrigin)
	}
	if want := []string{"Alarm clock", "time limit hit"}; !reflect.DeepEqual(cfg.Magma.StderrSignals, want) {
		t.Errorf("stderr_signals = %v, want %v", cfg.Magma.StderrSignals, want)
	}

	exec, err := cfg.Executor()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"nsjail", "--config", "/etc/nsjail/magma cfg"}; !reflect.DeepEqual(exec.SandboxCommand, want) {
		t.Errorf("sandbox command = %q, want %q", exec.SandboxCommand, want)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want env to win", cfg.Server.Port)
	}
}

func TestLoad_InvalidEnvInteger(t *testing.T) {
	isolate(t)
	t.Setenv("MAX_CONCURRENT", "four")

	if _, err := Load(""); err == nil {
		t.Error("Load() accepted a non-numeric MAX_CONCURRENT")
	}
}

func TestLoad_SecretFile(t *testing.T) {
	isolate(t)
	secretPath := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretPath, []byte("  0123456789abcdef0123\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STATS_TOKEN_SECRET_FILE", secretPath)

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Stats.TokenSecret != "0123456789abcdef0123" {
		t.Errorf("stats.token_secret = %q", cfg.Stats.TokenSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"timeout too short", func(c *Config) { c.Magma.Timeout = 1 }, "magma.timeout"},
		{"zero concurrency", func(c *Config) { c.Limits.MaxConcurrent = 0 }, "limits.max_concurrent"},
		{"unknown store", func(c *Config) { c.Usage.Store = "redis" }, "usage.store"},
		{"empty interpreter", func(c *Config) { c.Magma.Command = "  " }, "magma.command"},
		{"unterminated quote", func(c *Config) { c.Sandbox.Command = `nsjail "--config` }, "sandbox.command"},
		{"short secret", func(c *Config) { c.Stats.TokenSecret = "short" }, "token_secret"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
