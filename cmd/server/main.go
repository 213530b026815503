package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type options struct {
	configFile string
	v          *viper.Viper
}

// flagKeys maps command line flags onto config keys. Flags only exist on the
// commands that use them.
var flagKeys = map[string]string{
	"addr":            config.KeyServerAddr,
	"dsn":             config.KeyDatabaseDSN,
	"signing-key":     config.KeySigningKey,
	"allowed-origins": config.KeyAllowedOrigins,
	"redis-addr":      config.KeyRedisAddress,
	"log-level":       config.KeyLogLevel,
	"log-pretty":      config.KeyLogPretty,
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "classroom",
		Short:         "Real-time chat and notification hub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml)")
	root.PersistentFlags().String("dsn", "", "database connection string")
	root.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().Bool("log-pretty", false, "human readable console logs")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)

	return root
}

func (o *options) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v, err := config.NewViper(o.configFile)
	if err != nil {
		return err
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	o.v = v
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
