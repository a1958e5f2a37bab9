package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/app"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/config"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/worker"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

const healthAddr = ":8081"

func setupHealthCheck(a *app.App, l *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range a.Checks {
			if err := check(r.Context()); err != nil {
				l.Warn("readiness check failed", "check", name, "error", err.Error())
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "health check server failed")
		}
	}()
	return srv
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.ApplyWorkerOverrides(); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker overrides")
	}

	l := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	log.Logger = l.ZL

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal(err, "failed to initialize application")
	}
	defer a.Close()

	health := setupHealthCheck(a, l)

	scheduler := worker.NewScheduler(a.Membership, a.Invitations, cfg.ToSchedulerConfig(), l)
	if err := scheduler.Start(ctx); err != nil {
		l.Fatal(err, "failed to start scheduler")
	}

	<-ctx.Done()
	l.Info("shutting down worker...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)
}
