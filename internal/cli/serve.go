package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/csfam/pawprint/internal/common/logtrace"
	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/server"
)

// shutdownGrace is how long outstanding requests get after a shutdown signal.
const shutdownGrace = 5 * time.Second

func newServeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		Long: `Run the proxy server until SIGINT or SIGTERM is received.

Expired sessions are swept every auth.sweep_interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			logtrace.InitLogger(cfg.LogLevel)
			log.Info().Str("config_file", o.configFile).Msg("configuration loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

// runServer serves until ctx is cancelled or the listener fails.
func runServer(ctx context.Context, cfg *config.ConfigParam) error {
	slog := log.With().Str("state", "init").Logger()

	svc, err := server.NewServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating services: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error().Err(err).Msg("could not close session store")
		}
	}()

	serverErrors, shutdown, err := createProxyServer(ctx, cfg, svc)
	if err != nil {
		return fmt.Errorf("creating proxy server: %w", err)
	}

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go svc.Auth.RunSweeper(sweepCtx, cfg.Auth.GetSweepInterval())

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info().Msg("shutdown signal received")
		cancelSweep()
		shutdown()
	}

	slog.Info().Msg("server stopped")
	return nil
}

func createProxyServer(ctx context.Context, cfg *config.ConfigParam, svc *server.Services) (chan error, func(), error) {
	slog := log.With().Str("state", "init").Logger()
	s, err := server.CreateNewServer(svc, server.Options{
		HandleCORS:     cfg.HandleCORS,
		RequestTimeout: cfg.GetRequestTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	s.MountHandlers()

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info().Str("addr", srv.Addr).Str("backend", cfg.Storage.Backend).Msg("server started")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error().Err(err).Msg("could not stop server gracefully")
			if err := srv.Close(); err != nil {
				slog.Error().Err(err).Msg("could not stop server")
			}
		}
	}

	return serverErrors, shutdown, nil
}
