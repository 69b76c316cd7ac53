package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// ShouldRetry classifies an error as retryable or terminal. Returning false
// stops the retry loop immediately with that error.
type ShouldRetry func(err error) bool

// RetryStrategy wraps a fallible operation with a bounded exponential
// backoff policy. Waiting between attempts is context-aware and never
// blocks sibling executions.
type RetryStrategy struct {
	policy      RetryPolicy
	shouldRetry ShouldRetry
	logger      zerolog.Logger
}

// NewRetryStrategy creates a strategy for the given policy. The default
// classification retries everything except permanent-class errors; use
// WithClassifier to override per provider.
func NewRetryStrategy(policy RetryPolicy) *RetryStrategy {
	return &RetryStrategy{
		policy:      policy,
		shouldRetry: IsRetryable,
		logger:      zerolog.Nop(),
	}
}

// NoRetry returns a strategy performing exactly one attempt.
func NoRetry() *RetryStrategy {
	return NewRetryStrategy(NoRetryPolicy())
}

// WithClassifier overrides the retryable-error classification.
func (s *RetryStrategy) WithClassifier(fn ShouldRetry) *RetryStrategy {
	if fn != nil {
		s.shouldRetry = fn
	}
	return s
}

// WithLogger attaches a logger for per-attempt diagnostics.
func (s *RetryStrategy) WithLogger(logger zerolog.Logger) *RetryStrategy {
	s.logger = logger
	return s
}

// Execute runs op until it succeeds, the policy is exhausted, the error is
// classified terminal, or ctx is cancelled. It returns the number of
// attempts performed and the last error. Callers capture results in the
// closure.
func (s *RetryStrategy) Execute(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, lastErr
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if !s.shouldRetry(lastErr) {
			s.logger.Debug().
				Err(lastErr).
				Int("attempt", attempt).
				Msg("error classified terminal, not retrying")
			return attempt, lastErr
		}

		if attempt == s.policy.MaxAttempts {
			s.logger.Debug().
				Err(lastErr).
				Int("attempts", attempt).
				Msg("retry attempts exhausted")
			return attempt, lastErr
		}

		delay := s.backoff(attempt)
		s.logger.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", s.policy.MaxAttempts).
			Dur("backoff", delay).
			Msg("attempt failed, retrying after backoff")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, lastErr
		}
	}

	return s.policy.MaxAttempts, lastErr
}

// backoff returns the delay after the given 1-based failed attempt:
// min(initial * multiplier^(attempt-1), max).
func (s *RetryStrategy) backoff(attempt int) time.Duration {
	delay := s.policy.InitialBackoff
	if s.policy.BackoffMultiplier > 1 {
		delay = time.Duration(float64(s.policy.InitialBackoff) *
			math.Pow(s.policy.BackoffMultiplier, float64(attempt-1)))
	}
	if s.policy.MaxBackoff > 0 && delay > s.policy.MaxBackoff {
		delay = s.policy.MaxBackoff
	}
	return delay
}
