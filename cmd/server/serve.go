package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/magma-calc/internal/config"
	"github.com/sakif/magma-calc/internal/executor/sandbox"
	"github.com/sakif/magma-calc/internal/server"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	// `magma-calc --config path` and `magma-calc serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $CONFIG_FILE, ./config.yaml)")
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// === 3. EXECUTOR ===
	execCfg, err := cfg.Executor()
	if err != nil {
		return err
	}
	exec, err := sandbox.New(execCfg, logger)
	if err != nil {
		return fmt.Errorf("creating sandbox executor: %w", err)
	}

	// === 4. SERVER ===
	srv, err := server.New(cfg, logger, exec)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT or SIGTERM.
	return srv.Start()
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
