package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/magma-calc/internal/auth"
	"github.com/sakif/magma-calc/internal/config"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for GET /stats",
	Long: `Mint a bearer token for GET /stats, signed with stats.token_secret
(or STATS_TOKEN_SECRET). Send it as "Authorization: Bearer <token>".`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $CONFIG_FILE, ./config.yaml)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "name recorded in the token's sub claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "token lifetime")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	token, err := mintToken(cfg, tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func mintToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	if cfg.Stats.TokenSecret == "" {
		return "", errors.New("stats.token_secret is not set, /stats is public")
	}
	tokens, err := auth.NewTokenService(cfg.Stats.TokenSecret)
	if err != nil {
		return "", err
	}
	return tokens.Issue(subject, auth.ScopeStats, ttl)
}
