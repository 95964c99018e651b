package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if filePath := discoverConfigFile(configPath); filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile returns the first of: configPath, $CONFIG_FILE,
// ./config.yaml, /etc/magma-calc/config.yaml. Empty when none exists.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CONFIG_FILE"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/magma-calc/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile parses path into cfg. Fields absent from the file keep their
// current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables onto cfg. The variable names
// match the ones the deployment has always used.
func applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"PORT", &cfg.Server.Port},
		{"MAGMA_TIMEOUT", &cfg.Magma.Timeout},
		{"MAGMA_CPU_TIMEOUT", &cfg.Magma.CPUTimeout},
		{"MAGMA_MEMORY_MB", &cfg.Magma.MemoryMB},
		{"MAGMA_INPUT_KB", &cfg.Magma.InputKB},
		{"MAGMA_OUTPUT_KB", &cfg.Magma.OutputKB},
		{"MAGMA_CAPTURE_KB", &cfg.Magma.CaptureKB},
		{"MAX_CONCURRENT", &cfg.Limits.MaxConcurrent},
		{"RATE_LIMIT_PER_MINUTE", &cfg.Limits.RateLimitPerMinute},
		{"RATE_LIMIT_PER_HOUR", &cfg.Limits.RateLimitPerHour},
	}
	for _, v := range ints {
		raw, ok := os.LookupEnv(v.name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", v.name, raw, err)
		}
		*v.dst = n
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"ALLOWED_ORIGIN", &cfg.Server.AllowedOrigin},
		{"TLS_CERT_FILE", &cfg.Server.TLSCertFile},
		{"TLS_KEY_FILE", &cfg.Server.TLSKeyFile},
		{"MAGMA_COMMAND", &cfg.Magma.Command},
		{"USAGE_STORE", &cfg.Usage.Store},
		{"USAGE_LOG_FILE", &cfg.Usage.Path},
		{"STATS_TOKEN_SECRET", &cfg.Stats.TokenSecret},
		{"STATS_TOKEN_SECRET_FILE", &cfg.Stats.TokenSecretFile},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"LOG_FORMAT", &cfg.Log.Format},
	}
	for _, v := range strs {
		if raw := os.Getenv(v.name); raw != "" {
			*v.dst = raw
		}
	}

	// SANDBOX_COMMAND may be set to the empty string on purpose (no sandbox),
	// so presence matters, not content.
	if raw, ok := os.LookupEnv("SANDBOX_COMMAND"); ok {
		cfg.Sandbox.Command = raw
	}

	if raw := os.Getenv("STDERR_SIGNALS"); raw != "" {
		var signals []string
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				signals = append(signals, s)
			}
		}
		cfg.Magma.StderrSignals = signals
	}

	if raw := os.Getenv("METRICS_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED value %q: %w", raw, err)
		}
		cfg.Metrics.Enabled = enabled
	}

	return nil
}

// resolveFileReferences fills secret fields from their _file counterparts.
func resolveFileReferences(cfg *Config) error {
	if cfg.Stats.TokenSecretFile != "" && cfg.Stats.TokenSecret == "" {
		val, err := readSecretFile(cfg.Stats.TokenSecretFile)
		if err != nil {
			return fmt.Errorf("stats.token_secret_file: %w", err)
		}
		cfg.Stats.TokenSecret = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
