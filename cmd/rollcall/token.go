package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/rollcall/internal/auth"
	"github.com/zulandar/rollcall/internal/config"
	"golang.org/x/term"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	isTerminalFunc   = term.IsTerminal
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the dashboard API",
		Long: `Signs an admin token with dashboard.token_secret. When the config has no
secret and stdin is a terminal, the secret is read from a prompt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, subject, ttl)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Rollcall config file")
	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject, recorded in the dashboard log")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, configPath, subject string, ttl time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	secret := cfg.Dashboard.TokenSecret
	if secret == "" {
		fd := int(os.Stdin.Fd())
		if !isTerminalFunc(fd) {
			return fmt.Errorf("dashboard.token_secret is not set in %s", configPath)
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Signing secret: ")
		raw, err := readPasswordFunc(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("read secret: %w", err)
		}
		secret = strings.TrimSpace(string(raw))
	}

	tok, exp, err := auth.Issue(subject, auth.RoleAdmin, cfg.Dashboard.TokenIssuer, secret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	fmt.Fprintf(cmd.ErrOrStderr(), "Expires %s\n", exp.In(cfg.Location()).Format(time.RFC3339))
	return nil
}
