package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/app"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/config"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler/admin"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler/directory"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler/family"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler/invitation"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/middleware"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/router"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/auth"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/validator"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
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

	gin.SetMode(gin.ReleaseMode)
	if err := validator.RegisterGinBinding(); err != nil {
		l.Fatal(err, "failed to register validators")
	}

	verifier := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(verifier),
		router.Handlers{
			Health:     handler.NewHandler(a.Registry, a.Checks),
			Family:     family.NewHandler(a.Family),
			Invitation: invitation.NewHandler(a.Invitations),
			Directory:  directory.NewHandler(a.Directory),
			Admin:      admin.NewHandler(a.Membership, a.Invitations),
		},
		a.Limiter,
		a.Metrics,
		router.RouterConfig{
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			CORSConfig:       middleware.CORSConfig{AllowOrigins: cfg.Server.AllowedOrigins, MaxAge: 600},
			RateLimitBackend: cfg.RateLimit.Backend,
			MetricsPrefix:    cfg.Metrics.Namespace + "_http",
			Registerer:       a.Registry,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		l.Info("server listening", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "server failed")
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "server forced to shutdown")
		os.Exit(1)
	}

	l.Info("server exited properly")
}
