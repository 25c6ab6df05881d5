package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessAfterTransientFailures(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), http.StatusServiceUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	var retries []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 7, NewTransientError(errors.New("slow"), http.StatusGatewayTimeout)
	})
	require.Error(t, err)
	assert.Zero(t, val)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("x"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", NewTransientError(errors.New("x"), 429))))
	assert.True(t, IsTransient(errors.New("read tcp: i/o timeout")))
	assert.False(t, IsTransient(errors.New("invalid json")))
}

func TestHTTPStatusError(t *testing.T) {
	assert.True(t, IsTransient(HTTPStatusError("dvf", http.StatusTooManyRequests)))
	assert.False(t, IsTransient(HTTPStatusError("dvf", http.StatusNotFound)))
	assert.Contains(t, HTTPStatusError("dvf", 404).Error(), "dvf: returned status 404")
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	b := NewBreaker("vision", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	fail := func(_ context.Context) (int, error) { return 0, errors.New("boom") }
	ok := func(_ context.Context) (int, error) { return 1, nil }

	_, _ = ExecuteVal(context.Background(), b, fail)
	assert.Equal(t, StateClosed, b.State())
	_, _ = ExecuteVal(context.Background(), b, fail)
	assert.Equal(t, StateOpen, b.State())

	_, err := ExecuteVal(context.Background(), b, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	v, err := ExecuteVal(context.Background(), b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_IgnoresCallerDeadline(t *testing.T) {
	b := NewBreaker("sales", BreakerConfig{FailureThreshold: 1})
	_, _ = ExecuteVal(context.Background(), b, func(_ context.Context) (int, error) {
		return 0, context.DeadlineExceeded
	})
	assert.Equal(t, StateClosed, b.State())
}

func TestGuard_CallFailsFastAfterDeadline(t *testing.T) {
	g := NewGuard(fastRetry(), DefaultBreakerConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Call(ctx, g, ServiceSales, func(_ context.Context) (int, error) {
		called = true
		return 1, nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_RetriesAndTracksBreaker(t *testing.T) {
	g := NewGuard(fastRetry(), DefaultBreakerConfig())
	var calls int
	v, err := Call(context.Background(), g, ServiceGeocode, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("503"), 503)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateClosed, g.States()[ServiceGeocode])
}

func TestGuard_NilPassesThrough(t *testing.T) {
	v, err := Call(context.Background(), (*Guard)(nil), ServiceVision, func(_ context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Nil(t, (*Guard)(nil).States())
}
