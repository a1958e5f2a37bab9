package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Settings{Name: "smtp", MaxFailures: 2, Timeout: time.Minute})
	cb.nowFn = func() time.Time { return now }

	boom := errors.New("boom")
	calls := 0
	failing := func() error { calls++; return boom }

	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(failing), boom)
	assert.Equal(t, StateOpen, cb.State())

	t.Run("open short-circuits", func(t *testing.T) {
		assert.ErrorIs(t, cb.Execute(failing), ErrOpen)
		assert.Equal(t, 2, calls)
	})

	t.Run("half-open probe failure reopens", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Execute(failing), boom)
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("half-open probe success closes", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})
}
