// Package poll implements bounded fixed-interval polling of an operation that
// distinguishes "not ready yet" from terminal failure.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 20
)

// ErrTimeout is matched by every TimeoutError
var ErrTimeout = errors.New("polling budget exhausted")

// Options controls a single poll cycle.
// MaxAttempts == 0 polls without an attempt limit; MaxElapsed == 0 has no wall-clock limit.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

// TimeoutError reports that the operation never became ready within the budget
type TimeoutError struct {
	Attempts int
	Last     error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("not ready after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("not ready after %d attempts", e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Last }

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// Retry marks err as "not ready yet"; Poll will try again after the interval.
// Any error returned by an operation without this mark is fatal.
func Retry(err error) error {
	if err == nil {
		err = errors.New("not ready")
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retry
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Poll invokes op until it succeeds, fails fatally, the budget runs out or ctx is done.
// The interval timer is released on every exit path.
func Poll[T any](ctx context.Context, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}

	attempts := 0
	var lastRetryable error
	var fatal error

	operation := func() (T, error) {
		attempts++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if IsRetryable(err) {
			lastRetryable = errors.Unwrap(err)
			return zero, err
		}
		fatal = err
		return zero, backoff.Permanent(err)
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(opts.Interval)),
		backoff.WithMaxElapsedTime(opts.MaxElapsed),
	}
	if opts.MaxAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(uint(opts.MaxAttempts)))
	}

	res, err := backoff.Retry(ctx, operation, retryOpts...)
	if err == nil {
		return res, nil
	}
	if fatal != nil {
		return zero, fatal
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	return zero, &TimeoutError{Attempts: attempts, Last: lastRetryable}
}
