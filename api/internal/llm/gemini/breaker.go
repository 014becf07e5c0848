package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"ticket-proxy/api/internal/errx"
)

type CircuitBreaker interface {
	Execute(fn func() error) error
}

type circuitBreakerWrapper struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker trips after maxFailures consecutive failures. Upstream 4xx
// replies and calls abandoned by the caller's own context do not count.
func NewCircuitBreaker(name string, timeout time.Duration, maxFailures uint32) CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ce *callerError
			if errors.As(err, &ce) {
				return true
			}
			var se *errx.StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return errors.Is(err, errx.ErrNoCandidates) || errors.Is(err, errx.ErrAPIKeyMissing)
		},
	}
	return &circuitBreakerWrapper{
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *circuitBreakerWrapper) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", g.breaker.Name(), err)
	}
	return nil
}

type noBreaker struct{}

func (noBreaker) Execute(fn func() error) error { return fn() }

// callerError marks a failure caused by the caller's context ending, which
// says nothing about upstream health.
type callerError struct{ err error }

func (e *callerError) Error() string { return e.err.Error() }
func (e *callerError) Unwrap() error { return e.err }

func callerErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return &callerError{err: err}
	}
	return err
}
