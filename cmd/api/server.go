package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Run serves the API, and the metrics endpoint when enabled, until ctx is
// canceled. Servers are then shut down within the configured timeout.
func Run(ctx context.Context, deps *Dependencies) error {
	cfg := deps.Config

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr(),
		Handler:           deps.SalesHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if deps.Metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", deps.Metrics.Handler())
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			deps.Logger.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		deps.Logger.Info("shutdown signal received")
	case runErr = <-errCh:
		deps.Logger.Error("http server failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Warn("graceful shutdown failed",
				slog.String("addr", srv.Addr),
				slog.Any("error", err),
			)
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}
