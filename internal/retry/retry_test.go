package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hamed0406/uptimeagent/internal/domain"
)

func TestRun_MaxRetriesBoundsAttempts(t *testing.T) {
	var calls []time.Time
	op := func(ctx context.Context) (int, error) {
		calls = append(calls, time.Now())
		return 0, errors.New("fail" + string(rune('0'+len(calls))))
	}

	_, err := Run(context.Background(), op, Options{MaxRetries: 2, Delay: 20 * time.Millisecond})

	require.EqualError(t, err, "fail3")
	require.Len(t, calls, 3)
	for i := 1; i < len(calls); i++ {
		require.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), 20*time.Millisecond)
	}
}

func TestRun_SucceedsAfterRetry(t *testing.T) {
	var n int32
	op := func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&n, 1) < 2 {
			return "", errors.New("first fail")
		}
		return "ok", nil
	}

	v, err := Run(context.Background(), op, Options{MaxRetries: 3})

	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.EqualValues(t, 2, atomic.LoadInt32(&n))
}

func TestRun_ConfigErrorIsNotRetried(t *testing.T) {
	var n int
	op := func(ctx context.Context) (int, error) {
		n++
		return 0, domain.MissingField("uris")
	}

	_, err := Run(context.Background(), op, Options{MaxRetries: 5})

	require.True(t, domain.IsConfigError(err))
	require.Equal(t, 1, n)
}

func TestRun_AttemptTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var n int32
	op := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&n, 1)
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := Run(context.Background(), op, Options{Timeout: 10 * time.Millisecond, MaxRetries: 1, Op: "lookup"})

	var te *domain.TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "lookup", te.Op)
	require.EqualValues(t, 2, atomic.LoadInt32(&n))
}

func TestRun_CallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n int
	op := func(ctx context.Context) (int, error) {
		n++
		cancel()
		return 0, errors.New("boom")
	}

	_, err := Run(ctx, op, Options{MaxRetries: 10, Delay: time.Hour})

	require.EqualError(t, err, "boom")
	require.Equal(t, 1, n)
}

func TestRun_DelayIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, func(context.Context) (int, error) { return 0, errors.New("nope") },
		Options{MaxRetries: 3, Delay: time.Hour})

	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}
