package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// ExhaustedError is returned when every attempt of a wrapped operation failed
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Policy wraps fallible operations with exponential-backoff retries.
// The total number of attempts is MaxRetries + 1.
type Policy struct {
	MaxRetries         int           `json:"max_retries" yaml:"max_retries"`
	BaseDelay          time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay           time.Duration `json:"max_delay" yaml:"max_delay"`
	ExponentialBackoff bool          `json:"exponential_backoff" yaml:"exponential_backoff"`
	Jitter             bool          `json:"jitter" yaml:"jitter"`

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool `json:"-" yaml:"-"`

	// OnRetry is invoked before each backoff sleep with the attempt number
	// (1-based) and the error that triggered the retry.
	OnRetry func(attempt int, err error) `json:"-" yaml:"-"`
}

// DefaultPolicy returns the retry defaults used by the crawler
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:         3,
		BaseDelay:          2 * time.Second,
		MaxDelay:           60 * time.Second,
		ExponentialBackoff: true,
		Jitter:             true,
	}
}

// Do runs op until it succeeds, the error is not retryable, the attempts are
// exhausted, or the context is cancelled.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := p.delay(attempt)
		log.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", p.MaxRetries).
			Dur("delay", delay).
			Err(err).
			Msg("Operation failed, retrying")

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{Attempts: p.MaxRetries + 1, LastErr: lastErr}
}

// DoWithResult runs op under policy p and returns its value
func DoWithResult[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// delay computes the backoff before attempt k+1
func (p *Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	if p.ExponentialBackoff {
		d = p.BaseDelay << uint(attempt)
		if d > p.MaxDelay || d <= 0 {
			d = p.MaxDelay
		}
	}
	if p.Jitter {
		// scale by a uniform factor in [0.5, 1.5)
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}
