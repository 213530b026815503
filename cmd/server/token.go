package main

import (
	"fmt"
	"time"

	"github.com/npezzotti/go-classroom/internal/api"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/spf13/cobra"
)

// newTokenCmd mints session tokens for local development and integration
// with an external login service.
func newTokenCmd(opts *options) *cobra.Command {
	var (
		userId   string
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			if username == "" {
				username = userId
			}

			tok, err := api.CreateToken(cfg.SigningKey, userId, username, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userId, "user-id", "", "user id claim")
	cmd.Flags().StringVar(&username, "username", "", "username claim (defaults to the user id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String("signing-key", "", "base64 encoded signing key")
	cmd.MarkFlagRequired("user-id")

	return cmd
}
