package http

import (
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RateLimited gates a Service behind a token bucket.
type RateLimited struct {
	next    Service
	limiter *rate.Limiter
}

// RateLimit reports not ready while the limiter has no token available and
// makes Call wait for one.
func RateLimit(next Service, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (s *RateLimited) Ready() error {
	if s.limiter.Tokens() < 1 {
		return ErrRateLimited
	}
	return s.next.Ready()
}

func (s *RateLimited) Call(req *http.Request) (*http.Response, error) {
	if err := s.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}
	return s.next.Call(req)
}

// Breaker trips after repeated downstream failures. A downstream error or a
// 5xx response counts as a failure.
type Breaker struct {
	next Service
	cb   *gobreaker.TwoStepCircuitBreaker
}

func CircuitBreaker(next Service, settings gobreaker.Settings) *Breaker {
	return &Breaker{next: next, cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

func (b *Breaker) Ready() error {
	if b.cb.State() == gobreaker.StateOpen {
		return fmt.Errorf("circuit %q open: %w", b.cb.Name(), ErrNotReady)
	}
	return b.next.Ready()
}

func (b *Breaker) Call(req *http.Request) (*http.Response, error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("circuit %q: %w: %w", b.cb.Name(), ErrNotReady, err)
	}

	resp, err := b.next.Call(req)
	done(err == nil && resp != nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}

// State reports the breaker state, for diagnostics.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
