package codehost

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// OutboundLimiterConfig bounds outbound codehost traffic: a token bucket
// caps steady-state request rate, singleflight collapses identical
// in-flight reads (e.g. two stage workers polling the same CI run), and a
// circuit breaker trips after repeated failures so a degraded GitHub API
// doesn't cascade through every queued job.
type OutboundLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	BreakerName       string
	BreakerMaxFailures uint32
	BreakerTimeout    time.Duration
}

// DefaultLimiterConfig matches GitHub's documented secondary rate-limit
// guidance of staying comfortably under ~1 req/s sustained for REST calls.
func DefaultLimiterConfig() OutboundLimiterConfig {
	return OutboundLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             5,
		BreakerName:       "codehost-github",
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
}

// OutboundLimiter wraps an outbound call with rate limiting, request
// de-duplication, and circuit breaking.
type OutboundLimiter struct {
	limiter *rate.Limiter
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
}

func NewOutboundLimiter(cfg OutboundLimiterConfig) *OutboundLimiter {
	st := gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
	}
	return &OutboundLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// Do runs fn under rate limiting, circuit breaking, and singleflight
// de-duplication keyed by key. Concurrent callers sharing the same key
// observe a single underlying call and its shared result.
func (l *OutboundLimiter) Do(ctx context.Context, key string, fn func() error) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("codehost: rate limiter: %w", err)
	}

	_, err, _ := l.group.Do(key, func() (interface{}, error) {
		_, breakerErr := l.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		return nil, breakerErr
	})
	return err
}
