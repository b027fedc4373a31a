package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func newTestBreaker(cfg Config) *CircuitBreaker {
	return New("test", cfg, zap.NewNop())
}

func trip(t *testing.T, cb *CircuitBreaker, failures uint32) {
	t.Helper()
	for i := uint32(0); i < failures; i++ {
		err := cb.Execute(context.Background(), func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
}

func TestBreaker_StartsClosed(t *testing.T) {
	cb := newTestBreaker(DefaultConfig())
	assert.Equal(t, StateClosed, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cb := newTestBreaker(cfg)

	trip(t, cb, 3)
	assert.Equal(t, StateOpen, cb.State())

	// open breaker rejects without invoking fn
	called := false
	err := cb.Execute(context.Background(), func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 3
	cb := newTestBreaker(cfg)

	trip(t, cb, 2)
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	trip(t, cb, 2)

	// 2 failures, success, 2 failures: streak never reached 3
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 20 * time.Millisecond
	cfg.SuccessThreshold = 2
	cb := newTestBreaker(cfg)

	trip(t, cb, 1)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// two probe successes close the breaker
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 20 * time.Millisecond
	cb := newTestBreaker(cfg)

	trip(t, cb, 1)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	trip(t, cb, 1)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRequests = 1
	cfg.SuccessThreshold = 2
	cb := newTestBreaker(cfg)

	trip(t, cb, 1)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	// first probe is admitted and held open
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Execute(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)
	close(release)
}

func TestBreaker_CountsTrackGeneration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 5
	cb := newTestBreaker(cfg)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	trip(t, cb, 2)

	counts := cb.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(2), counts.TotalFailures)
	assert.Equal(t, uint32(2), counts.ConsecutiveFailures)
}
