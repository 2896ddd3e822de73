package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rep4rep/steam-commenter/internal/config"
	"github.com/rep4rep/steam-commenter/internal/handler"
	"github.com/rep4rep/steam-commenter/internal/jobs"
	"github.com/rep4rep/steam-commenter/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only status API",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(ctx context.Context, a *app, _ []string) error {
		server := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      newRouter(a),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerRequestTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		}
		return serveUntilDone(ctx, server)
	}),
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the fleet every DAEMON_INTERVAL_MINUTES and serve the status API",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, _ []string) error {
		job := jobs.NewFleetJob(a.fleet, a.lock, cfg.DaemonInterval())
		job.Start()
		defer job.Stop()

		server := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      newRouter(a),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerRequestTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		}
		return serveUntilDone(ctx, server)
	}),
}

func newRouter(a *app) http.Handler {
	status := handler.NewStatusHandler(a.db, a.profiles)
	auth := middleware.NewTokenAuthMiddleware(cfg.APIToken)
	if cfg.APIToken == "" {
		log.Warn().Msg("API_TOKEN is empty: /v1 routes are unauthenticated")
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", status.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Handler)
		r.Mount("/", status.Routes())
	})

	return r
}

// serveUntilDone runs server until ctx is cancelled, then shuts it down
// gracefully.
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}
