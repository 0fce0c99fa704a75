// Package retry runs an operation with a per-attempt timeout and a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

type Options struct {
	// Timeout bounds one attempt. Zero or negative disables it.
	Timeout    time.Duration
	MaxRetries int
	Delay      time.Duration
	// ShouldRetry decides whether err is worth another attempt.
	// Nil retries everything except configuration errors.
	ShouldRetry func(error) bool
	// Op names the operation in timeout errors.
	Op string
}

func defaultShouldRetry(err error) bool { return !domain.IsConfigError(err) }

// Run calls op until it succeeds, at most MaxRetries+1 times, and returns the
// last error when every attempt failed.
func Run[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = defaultShouldRetry
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := once(ctx, op, opts)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !shouldRetry(err) || attempt >= opts.MaxRetries {
			return zero, err
		}
		if serr := sleep(ctx, opts.Delay); serr != nil {
			return zero, err
		}
	}
}

type outcome[T any] struct {
	v   T
	err error
}

func once[T any](ctx context.Context, op func(context.Context) (T, error), opts Options) (T, error) {
	var zero T
	if opts.Timeout <= 0 {
		return op(ctx)
	}

	actx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%s: panic: %v", opts.Op, r)}
			}
		}()
		v, err := op(actx)
		done <- outcome[T]{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &domain.TimeoutError{Op: opts.Op, After: opts.Timeout}
		}
		return o.v, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &domain.TimeoutError{Op: opts.Op, After: opts.Timeout}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
