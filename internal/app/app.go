// Package app wires the services from configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/config"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/email"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/handler"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository/document"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/directory"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/family"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/invitation"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/notification"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore/memory"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore/postgres"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/messaging"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/messaging/redis"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/ratelimit"
)

type Repositories struct {
	Patients    repository.PatientRepository
	Members     repository.MemberRepository
	Index       repository.MembershipIndexRepository
	Invitations repository.InvitationRepository
	Profiles    repository.ProfileRepository
	Audit       repository.AuditRepository
}

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	Store  docstore.Store
	Redis  *goredis.Client
	Broker messaging.Broker
	Repos  Repositories

	Guard       *access.Guard
	Membership  *membership.Service
	Invitations *invitation.Service
	Family      *family.Service
	Directory   *directory.Builder
	AuditLogger *audit.AuditLogger
	Notifier    *notification.Service
	Limiter     ratelimit.Limiter

	// Checks feed the readiness endpoint.
	Checks map[string]handler.Checker

	closers []func() error
}

// New connects the configured backends and builds every service.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: reg,
		Metrics:  metrics.NewMetrics(cfg.Metrics.Namespace, "", reg),
		Checks:   map[string]handler.Checker{},
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildLimiter(); err != nil {
		a.Close()
		return nil, err
	}
	a.buildServices()
	return a, nil
}

func (a *App) openStore() error {
	switch a.Config.Store.Backend {
	case "postgres":
		db, err := postgres.NewDB(a.Config.ToPostgresConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := postgres.RunMigrations(db.DB, a.Config.Store.MigrationsPath); err != nil {
			db.Close()
			return err
		}
		store := postgres.New(db)
		a.Store = docstore.Instrument(store, a.Metrics)
		a.closers = append(a.closers, store.Close)
		a.Checks["database"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	default:
		a.Log.Warn("using the in-memory document store; data is lost on restart")
		a.Store = docstore.Instrument(memory.New(), a.Metrics)
	}

	base := document.NewBaseRepository(a.Store)
	a.Repos = Repositories{
		Patients:    document.NewPatientRepository(base),
		Members:     document.NewMemberRepository(base),
		Index:       document.NewMembershipIndexRepository(base),
		Invitations: document.NewInvitationRepository(base),
		Profiles:    document.NewProfileRepository(base),
		Audit:       document.NewAuditRepository(base),
	}
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if !a.Config.Redis.Enabled {
		return nil
	}
	client, err := redis.NewClient(ctx, a.Config.ToRedisConfig())
	if err != nil {
		return err
	}
	a.Redis = client
	a.Broker = redis.NewRedisBroker(client, a.Log.ZL)
	// The broker owns the client.
	a.closers = append(a.closers, a.Broker.Close)
	a.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return nil
}

func (a *App) buildLimiter() error {
	rl := a.Config.ToRateLimitConfig()
	if !a.Config.RateLimit.Enabled {
		return nil
	}
	switch rl.Backend {
	case "redis":
		if a.Redis == nil {
			return fmt.Errorf("redis rate limiter needs a redis connection")
		}
		a.Limiter = ratelimit.NewRedisLimiter(a.Redis, rl.Requests, rl.Window, "family:ratelimit:")
	default:
		a.Limiter = ratelimit.NewLocalLimiter(rl.RPS, rl.Burst)
	}
	return nil
}

func (a *App) buildServices() {
	cfg, log, m, r := a.Config, a.Log, a.Metrics, a.Repos

	var mailer email.Service
	if cfg.Notification.SMTP.Host != "" {
		mailer = email.NewSMTPService(cfg.Notification.SMTP)
	} else {
		mailer = email.NewLogService(log)
	}
	a.Notifier = notification.NewService(cfg.ToNotificationConfig(), mailer, a.Broker, log, m)
	a.AuditLogger = audit.NewAuditLogger(audit.NewService(r.Audit), log)

	a.Guard = access.NewGuard(r.Members, r.Index, r.Patients, cfg.Guard.CacheTTL, log, m)
	a.Membership = membership.NewService(r.Members, r.Index, r.Patients, log, m,
		membership.WithInvalidator(a.Guard),
		membership.WithAuditor(a.AuditLogger),
		membership.WithConcurrency(cfg.Reconcile.Concurrency),
	)
	a.Invitations = invitation.NewService(cfg.ToInvitationConfig(), invitation.Deps{
		Invitations: r.Invitations,
		Members:     r.Members,
		Index:       r.Index,
		Patients:    r.Patients,
		Profiles:    r.Profiles,
		Guard:       a.Guard,
		Replicator:  a.Membership,
		Auditor:     a.AuditLogger,
		Notifier:    a.Notifier,
		Logger:      log,
		Metrics:     m,
	})
	a.Family = family.NewService(a.Guard, a.Membership, r.Members, r.Patients,
		a.AuditLogger, audit.NewService(r.Audit), a.Notifier, log)
	a.Directory = directory.NewBuilder(r.Members, r.Index, r.Patients, r.Profiles, log)
}

// Close drains background work and releases connections.
func (a *App) Close() {
	if a.AuditLogger != nil {
		a.AuditLogger.Wait()
	}
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Log.Error(err, "failed to close resource")
		}
	}
	a.closers = nil
}
