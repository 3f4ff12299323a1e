package codehost

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RetryConfig configures exponential-backoff retry for outbound GitHub API
// calls.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Logger            *zap.Logger
}

// DefaultRetryConfig: 3 retries, 1s initial backoff doubling up to 30s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Logger:            zap.NewNop(),
	}
}

func (c *GitHubClient) withRetry(ctx context.Context, operation func() (*github.Response, error)) error {
	cfg := c.retry
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var lastErr error
	var lastResp *github.Response
	backoff := cfg.InitialBackoff
	if backoff == 0 {
		backoff = time.Second
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		resp, err := operation()
		if err == nil {
			if attempt > 0 {
				log.Info("github operation recovered after retries", zap.Int("attempts", attempt))
			}
			return nil
		}
		lastErr, lastResp = err, resp

		if !isRetryable(err, resp) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff
		if isRateLimited(resp) {
			wait = rateLimitBackoff(resp, cfg.MaxBackoff)
		}
		log.Info("retrying github operation", zap.Int("attempt", attempt+1), zap.Duration("backoff", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("codehost: operation canceled: %w", ctx.Err())
		case <-time.After(wait):
			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}

	log.Warn("github operation failed after all retries", zap.Int("max_retries", cfg.MaxRetries), zap.Error(lastErr))
	return fmt.Errorf("codehost: github operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

func isRetryable(err error, resp *github.Response) bool {
	if err == nil {
		return false
	}
	if resp == nil || resp.Response == nil {
		return true
	}
	switch resp.Response.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case http.StatusForbidden:
		return resp.Rate.Limit > 0
	default:
		return resp.Response.StatusCode >= 500
	}
}

func isRateLimited(resp *github.Response) bool {
	if resp == nil || resp.Response == nil {
		return false
	}
	if resp.Response.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.Response.StatusCode == http.StatusForbidden && resp.Rate.Limit > 0
}

func rateLimitBackoff(resp *github.Response, maxBackoff time.Duration) time.Duration {
	if resp == nil || resp.Rate.Limit == 0 {
		return time.Minute
	}
	backoff := time.Until(resp.Rate.Reset.Time) + time.Second
	if backoff < 0 {
		backoff = time.Second
	}
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
