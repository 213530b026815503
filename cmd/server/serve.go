package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-classroom/internal/api"
	"github.com/npezzotti/go-classroom/internal/cache"
	"github.com/npezzotti/go-classroom/internal/config"
	"github.com/npezzotti/go-classroom/internal/database"
	"github.com/npezzotti/go-classroom/internal/hub"
	"github.com/npezzotti/go-classroom/internal/logging"
	"github.com/npezzotti/go-classroom/internal/stats"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hub and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.v)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cmd.Context(), cfg, migrateFirst)
		},
	}

	cmd.Flags().String("addr", "", "server address")
	cmd.Flags().String("signing-key", "", "base64 encoded signing key")
	cmd.Flags().StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	cmd.Flags().String("redis-addr", "", "redis address for the recent message cache")
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply database migrations before serving")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrateFirst bool) error {
	logger := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Pretty:  cfg.Log.Pretty,
		Service: "classroom",
	})

	if migrateFirst {
		if err := database.Migrate(cfg.DatabaseDSN); err != nil {
			return err
		}
		logger.Info().Msg("migrations applied")
	}

	repo, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("db close")
		}
	}()

	opts := hub.Options{PersistConcurrency: cfg.PersistConcurrency}
	if cfg.Redis.Enabled() {
		mc, err := cache.NewRedisMessageCache(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			History:  cfg.Redis.HistorySize,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer mc.Close()
		opts.Cache = mc
		logger.Info().Str("addr", cfg.Redis.Address).Msg("message cache enabled")
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	h := hub.NewHub(logger.With().Str("component", "hub").Logger(), repo, statsUpdater, opts)
	srv := api.NewClassroomApp(mux, logger, h, repo, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go h.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	logger.Info().Msg("shutting down hub...")
	if err := h.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
