package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*membership.ReconcileReport, error)
}

type InvitationSweeper interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Config struct {
	// Schedule is a standard five-field cron expression.
	Schedule   string
	SweepEvery time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

// Scheduler runs the periodic reconciliation pass and the invitation expiry sweep.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	sweeper    InvitationSweeper
	cfg        Config
	log        *logger.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(reconciler Reconciler, sweeper InvitationSweeper, cfg Config, log *logger.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = "*/15 * * * *"
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		sweeper:    sweeper,
		cfg:        cfg,
		log:        log.WithFields(map[string]interface{}{"component": "scheduler"}),
	}
}

// Start registers the jobs and starts the cron runner. It returns once the
// jobs are scheduled; Stop waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.RunReconcile(ctx) }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.cfg.Schedule, err)
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.SweepEvery), func() { s.RunSweep(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep interval: %w", err)
	}

	if s.cfg.RunOnStart {
		go s.RunReconcile(ctx)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "schedule", s.cfg.Schedule, "sweep_every", s.cfg.SweepEvery.String())
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunReconcile runs one reconciliation pass over every family. Overlapping
// runs are skipped.
func (s *Scheduler) RunReconcile(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("reconcile already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	reports, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.log.Error(err, "reconcile pass failed")
		return
	}

	var created, removed, failed int
	for _, r := range reports {
		created += r.Created
		removed += r.Removed
		failed += r.Failed
	}
	s.log.Info("reconcile pass finished",
		"families", len(reports),
		"created", created,
		"removed", removed,
		"failed", failed,
		"duration", time.Since(start).String(),
	)
}

func (s *Scheduler) RunSweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	n, err := s.sweeper.ExpireStale(ctx)
	if err != nil {
		s.log.Error(err, "invitation sweep failed")
		return
	}
	if n > 0 {
		s.log.Info("expired stale invitations", "count", n)
	}
}
