package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

type fakeReconciler struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	reports []*membership.ReconcileReport
	err     error
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) ([]*membership.ReconcileReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.reports, f.err
}

func (f *fakeReconciler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSweeper struct {
	calls int
	n     int
	err   error
}

func (f *fakeSweeper) ExpireStale(ctx context.Context) (int, error) {
	f.calls++
	return f.n, f.err
}

func TestSchedulerRunReconcile(t *testing.T) {
	rec := &fakeReconciler{reports: []*membership.ReconcileReport{
		{OwnerID: "a", Created: 1},
		{OwnerID: "b", Removed: 2},
	}}
	s := NewScheduler(rec, &fakeSweeper{}, Config{}, logger.Nop())

	s.RunReconcile(context.Background())
	assert.Equal(t, 1, rec.Calls())

	rec.err = errors.New("store down")
	s.RunReconcile(context.Background())
	assert.Equal(t, 2, rec.Calls())
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	rec := &fakeReconciler{block: make(chan struct{})}
	s := NewScheduler(rec, &fakeSweeper{}, Config{}, logger.Nop())

	done := make(chan struct{})
	go func() {
		s.RunReconcile(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.Calls() == 1 }, time.Second, 5*time.Millisecond)

	// The first run is still blocked, so this one returns immediately.
	s.RunReconcile(context.Background())
	assert.Equal(t, 1, rec.Calls())

	close(rec.block)
	<-done
}

func TestSchedulerRunSweep(t *testing.T) {
	sw := &fakeSweeper{n: 3}
	s := NewScheduler(&fakeReconciler{}, sw, Config{}, logger.Nop())

	s.RunSweep(context.Background())
	sw.err = errors.New("boom")
	s.RunSweep(context.Background())
	assert.Equal(t, 2, sw.calls)
}

func TestSchedulerStart(t *testing.T) {
	t.Run("invalid schedule", func(t *testing.T) {
		s := NewScheduler(&fakeReconciler{}, &fakeSweeper{}, Config{Schedule: "not a schedule"}, logger.Nop())
		assert.Error(t, s.Start(context.Background()))
	})

	t.Run("run on start", func(t *testing.T) {
		rec := &fakeReconciler{}
		s := NewScheduler(rec, &fakeSweeper{}, Config{Schedule: "0 3 * * *", RunOnStart: true}, logger.Nop())
		require.NoError(t, s.Start(context.Background()))
		defer s.Stop()

		assert.Eventually(t, func() bool { return rec.Calls() == 1 }, time.Second, 5*time.Millisecond)
	})
}
