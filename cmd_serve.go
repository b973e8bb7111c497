package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FLP-Quant/settlement-parsing-tools/internal/audit"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/auth"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/application"
	mishttp "github.com/FLP-Quant/settlement-parsing-tools/internal/mis/interfaces/http"
	"github.com/FLP-Quant/settlement-parsing-tools/internal/mis/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API and metrics, and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	store, runs, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	metrics.RegisterRunGauges(prometheus.DefaultRegisterer, store.DB(), a.logger)

	runner, err := a.newRunner(store, runs, m)
	if err != nil {
		return err
	}
	auditRepo := audit.NewRepository(store)
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		return err
	}

	handler, err := mishttp.NewHandler(runner, auditRepo, a.logger)
	if err != nil {
		return err
	}
	opts := mishttp.RouterOptions{
		Metrics:        m,
		MetricsHandler: promhttp.Handler(),
		Logger:         a.logger,
	}
	if a.cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		opts.Auth = auth.NewMiddleware([]byte(a.cfg.JWTSecret), policy)
	} else {
		a.logger.WithField("event", "auth_disabled").Warn("AUTH_JWT_SECRET not set; run API is unauthenticated")
	}

	jobs, err := a.cfg.Jobs()
	if err != nil {
		return err
	}
	if a.cfg.Schedule.DailyAt != "" && len(jobs) > 0 {
		loc, err := a.cfg.Location()
		if err != nil {
			return err
		}
		scheduler := application.NewScheduler(runner, jobs, a.cfg.Schedule.DailyAt, loc, a.logger)
		go scheduler.Start(ctx)
		a.logger.WithFields(log.Fields{"event": "mis_schedule_enabled", "daily_at": a.cfg.Schedule.DailyAt, "jobs": len(jobs)}).Info("scheduler started")
	}

	server := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           mishttp.NewRouter(handler, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", a.cfg.HTTPAddr).Info("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("http shutdown")
	}
	runner.Shutdown()
	a.logger.Info("stopped")
	return nil
}
