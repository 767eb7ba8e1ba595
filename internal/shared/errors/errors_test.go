package errors

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(FromHTTPStatus(http.StatusServiceUnavailable, errors.New("down"))))
	assert.False(t, IsTransient(FromHTTPStatus(http.StatusBadRequest, errors.New("bad"))))
	assert.False(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestRetryWithResultRetriesTransient(t *testing.T) {
	calls := 0
	out, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("flaky"), 503)
		}
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResultStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		return 0, NewPermanentError(errors.New("nope"), 401)
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResultExhausts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("flaky"), 502)
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 3, calls)
}

func TestBreakerOpensAfterTransientFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	b := NewBreaker(cfg, nil)

	fail := func(context.Context) (string, error) {
		return "", NewTransientError(errors.New("timeout"), 504)
	}
	for i := 0; i < 2; i++ {
		_, err := ExecuteFunc(b, context.Background(), fail)
		require.Error(t, err)
	}

	called := false
	_, err := ExecuteFunc(b, context.Background(), func(context.Context) (string, error) {
		called = true
		return "never", nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
	assert.Equal(t, "open", b.State())
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	cfg := DefaultBreakerConfig("permanent")
	cfg.MinRequests = 1
	b := NewBreaker(cfg, nil)

	for i := 0; i < 3; i++ {
		_, _ = ExecuteFunc(b, context.Background(), func(context.Context) (int, error) {
			return 0, NewPermanentError(errors.New("bad prompt"), 400)
		})
	}
	assert.Equal(t, "closed", b.State())
}
