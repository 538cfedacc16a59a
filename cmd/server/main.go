package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"credtrust/internal/platform/config"
	"credtrust/internal/platform/logger"
	httptransport "credtrust/internal/transport/http"
	"credtrust/pkg/platform/middleware/request"
)

const (
	shutdownTimeout   = 10 * time.Second
	poolStatsInterval = 15 * time.Second
)

// main wires dependencies from the environment and runs the HTTP server
// until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing credtrust",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"storage", cfg.Storage.Backend,
		"twofa_backend", cfg.TwoFactor.Backend,
		"allow_unprotected_revocation", cfg.TwoFactor.AllowUnprotectedRevocation,
	)
	warnUnprotectedRevocation(log, cfg.TwoFactor)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := buildApp(ctx, cfg, log, registry)
	if err != nil {
		return err
	}
	defer app.close()

	router := httptransport.NewRouter(httptransport.Config{
		APIKeys:  cfg.APIKeys,
		Gatherer: registry,
		Latency:  request.NewMetrics(registry),
	}, log, app.health, app.routes...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if app.redis != nil {
		g.Go(func() error {
			return app.redis.RunPoolStatsRecorder(gctx, poolStatsInterval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// warnUnprotectedRevocation flags deployments where revocation can proceed
// without a second factor until 2FA is enabled.
func warnUnprotectedRevocation(log *slog.Logger, tf config.TwoFactor) {
	if tf.AllowUnprotectedRevocation {
		log.Warn("unprotected revocation is enabled; revocations are accepted without two-factor authentication until it is configured",
			"env", "ALLOW_UNPROTECTED_REVOCATION")
	}
}
