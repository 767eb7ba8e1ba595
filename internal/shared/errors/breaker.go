package errors

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"nudge/internal/shared/logging"
)

// BreakerConfig configures a collaborator circuit breaker.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a configuration tuned for slow third-party APIs.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          2 * time.Minute,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// Breaker guards a collaborator so repeated failures short-circuit to the
// caller's fallback instead of waiting on timeouts.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a gobreaker-backed breaker.
func NewBreaker(config BreakerConfig, logger logging.Logger) *Breaker {
	logger = logging.OrNop(logger)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker %q changed from %s to %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Permanent errors are our request's fault, not the collaborator's.
			return err == nil || !IsTransient(err)
		},
	})
	return &Breaker{cb: cb}
}

// State reports the current breaker state.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// ExecuteFunc runs fn through the breaker. An open breaker returns
// gobreaker.ErrOpenState without calling fn.
func ExecuteFunc[T any](b *Breaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	out, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	result, _ := out.(T)
	return result, nil
}
