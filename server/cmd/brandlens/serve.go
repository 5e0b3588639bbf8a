package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/server/internal/api"
	"github.com/brandlens/brandlens/server/internal/auth"
	"github.com/brandlens/brandlens/server/internal/config"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the background evaluation loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	s := a.cfg.Server
	slog.Info("brandlens starting",
		"config", a.cfgPath,
		"http_port", s.HTTPPort,
		"auth_mode", s.Auth.Mode,
		"storage", s.Storage.Driver,
		"window", s.Evaluation.Window,
		"interval", s.Evaluation.Interval,
		"webhooks", len(s.Alerts.Webhooks),
	)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	eng, hooks := a.newEngine(st)

	// Background evaluation of every known client.
	go eng.Run(ctx, s.Evaluation.Interval)

	// Webhook targets and log level follow the config file.
	if a.cfgPath != "" {
		go func() {
			err := config.Watch(ctx, a.cfgPath, func(cfg *config.Config) {
				hooks.SetTargets(cfg.Server.Alerts.Webhooks)
				a.level.Set(cfg.Server.Log.SlogLevel())
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	apiHandler := api.New(st, eng, a.counters)
	authMW := auth.Middleware(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key())

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/v1/health", apiHandler)
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/api/", authMW(apiHandler))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("brandlens shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
