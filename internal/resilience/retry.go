package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/stockassistant/orchestrator/internal/apperrors"
	"github.com/stockassistant/orchestrator/internal/metrics"
)

// RetryConfig controls exponential backoff with jitter, per spec.md
// section 4.3.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	// Retryable reports whether err should trigger another attempt. A nil
	// Retryable treats every non-nil error as retryable.
	Retryable func(err error) bool

	// ProfileName labels attempts/exhaustion samples recorded against
	// Metrics, e.g. "mcp". Left empty, samples are recorded as "default".
	ProfileName string
	// Metrics is optional; a nil value (the zero value of every named
	// profile) makes every Record* call below a no-op.
	Metrics *metrics.Metrics
}

// Named profiles from spec.md section 4.3.
var (
	ProfileMCP = RetryConfig{
		MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 10 * time.Second,
		Multiplier: 2.0, Jitter: true,
	}
	ProfileDatabase = RetryConfig{
		MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second,
		Multiplier: 2.0, Jitter: true,
	}
	ProfileExternalAPI = RetryConfig{
		MaxAttempts: 5, InitialDelay: 2 * time.Second, MaxDelay: 60 * time.Second,
		Multiplier: 2.0, Jitter: true,
	}
	ProfileQuick = RetryConfig{
		MaxAttempts: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second,
		Multiplier: 2.0, Jitter: false,
	}
)

// Profile looks up a predefined retry configuration by name, falling
// back to ProfileQuick for unknown names.
func Profile(name string) RetryConfig {
	switch name {
	case "mcp":
		return ProfileMCP
	case "database":
		return ProfileDatabase
	case "external_api":
		return ProfileExternalAPI
	case "quick":
		return ProfileQuick
	default:
		return ProfileQuick
	}
}

// Delay computes delay(attempt) = min(initial*base^attempt, max) *
// (0.5 + rand*0.5) when jitter is enabled, matching spec.md section 4.3
// exactly. attempt is 0-indexed.
func Delay(attempt int, cfg RetryConfig) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	delay := float64(cfg.InitialDelay) * pow(mult, attempt)
	if max := float64(cfg.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	if cfg.Jitter {
		delay *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Retry runs op up to cfg.MaxAttempts times, delegating backoff timing to
// cenkalti/backoff (the same library spec.md's teacher project wraps in
// infrastructure/resilience/resilience.go) while keeping spec.md's own
// attempt-counting and RetryExhausted contract at the surface. Only
// errors accepted by cfg.Retryable are retried; anything else propagates
// immediately without consuming an attempt's backoff delay.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	if cfg.Jitter {
		bo.RandomizationFactor = 0.5
	} else {
		bo.RandomizationFactor = 0
	}
	bo.MaxElapsedTime = 0

	withMax := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	profileName := cfg.ProfileName
	if profileName == "" {
		profileName = "default"
	}

	attempts := 0
	var lastErr error
	var nonRetryable error

	err := backoff.Retry(func() error {
		attempts++
		cfg.Metrics.RecordRetryAttempt(profileName)
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(cfg, err) {
			nonRetryable = err
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)

	if nonRetryable != nil {
		return nonRetryable
	}
	if err != nil {
		cfg.Metrics.RecordRetryExhausted(profileName)
		return apperrors.RetryExhausted(attempts, lastErr)
	}
	return nil
}

func isRetryable(cfg RetryConfig, err error) bool {
	if cfg.Retryable == nil {
		return true
	}
	return cfg.Retryable(err)
}

// IsRetryExhausted reports whether err is a RetryExhausted ServiceError.
func IsRetryExhausted(err error) bool {
	var svcErr *apperrors.ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == apperrors.CodeRetryExhausted
}
