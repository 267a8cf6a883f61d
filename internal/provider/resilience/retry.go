package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Class is the retry classification of an error.
type Class int

const (
	// ClassRetryable errors are retried with exponential backoff.
	ClassRetryable Class = iota
	// ClassRateLimited errors are retried with linear backoff.
	ClassRateLimited
	// ClassPermanent errors are returned immediately.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassRateLimited:
		return "rate_limited"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Policy describes the retry envelope of an operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialInterval is the wait before the second attempt after a
	// retryable error. Later waits grow by Multiplier.
	InitialInterval time.Duration

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// RateLimitStep is the linear step used after HTTP 429:
	// the wait before attempt n+1 is (n+1)*RateLimitStep.
	RateLimitStep time.Duration

	// BaseTimeout is the timeout of the first attempt.
	BaseTimeout time.Duration

	// TimeoutGrowth is added to the timeout for every retry.
	TimeoutGrowth time.Duration
}

// DefaultPolicy returns the upstream retry policy: 3 attempts, 1s/2s
// exponential waits, 10s linear steps on 429, and a 10s attempt timeout that
// grows by 5s per retry.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		Multiplier:      2,
		RateLimitStep:   10 * time.Second,
		BaseTimeout:     10 * time.Second,
		TimeoutGrowth:   5 * time.Second,
	}
}

// AttemptTimeout returns the timeout for the zero-based attempt.
func (p Policy) AttemptTimeout(attempt int) time.Duration {
	return p.BaseTimeout + time.Duration(attempt)*p.TimeoutGrowth
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.RateLimitStep <= 0 {
		p.RateLimitStep = d.RateLimitStep
	}
	if p.BaseTimeout <= 0 {
		p.BaseTimeout = d.BaseTimeout
	}
	return p
}

// exponential builds a jitter-free schedule: InitialInterval, then
// InitialInterval*Multiplier, and so on.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxInterval = time.Hour
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Options holds the injectable collaborators of Retry.
type Options struct {
	// Clock drives backoff waits. Defaults to the real clock.
	Clock clockwork.Clock

	// Classify overrides the default error classification.
	Classify func(error) Class

	// Notify is called before each backoff wait with the 1-based number of
	// the failed attempt.
	Notify func(attempt int, err error, wait time.Duration)
}

// Retry runs op until it succeeds, fails permanently, or MaxAttempts is
// reached. Each attempt runs under its own timeout derived from ctx.
func Retry[T any](ctx context.Context, p Policy, opts Options, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	classify := opts.Classify
	if classify == nil {
		classify = Classify
	}

	bo := p.exponential()

	var zero T
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout(attempt))
		v, err := op(attemptCtx, attempt)
		cancel()
		if err == nil {
			return v, nil
		}
		lastErr = err

		// Advance the schedule on every attempt so waits stay indexed by
		// attempt number even when a 429 is interleaved.
		wait := bo.NextBackOff()

		if ctx.Err() != nil {
			return zero, err
		}
		class := classify(err)
		if class == ClassPermanent {
			return zero, unwrapPermanent(err)
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		if class == ClassRateLimited {
			wait = time.Duration(attempt+1) * p.RateLimitStep
		}

		if opts.Notify != nil {
			opts.Notify(attempt+1, err, wait)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-clock.After(wait):
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, p.MaxAttempts, unwrapPermanent(lastErr))
}

// Classify maps an error onto a retry class. HTTP 429 is rate limited;
// 5xx, timeouts and network failures (refused connections, DNS) are
// retryable; other HTTP statuses, open circuits, cancellations and errors
// wrapped with backoff.Permanent are permanent. Anything unrecognised is
// treated as retryable.
func Classify(err error) Class {
	if err == nil {
		return ClassRetryable
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return ClassPermanent
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return ClassPermanent
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}
	var se *ServerError
	if errors.As(err, &se) {
		return ClassRetryable
	}
	var st *StatusError
	if errors.As(err, &st) {
		return ClassPermanent
	}

	// Timeouts, refused connections, DNS failures and other transport errors
	// all land here.
	return ClassRetryable
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) && perm.Err != nil {
		return perm.Err
	}
	return err
}
