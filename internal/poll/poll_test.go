package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoll_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := Poll(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 5},
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", Retry(errors.New("pending"))
			}
			return "done", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestPoll_TimeoutAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 3},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, Retry(errors.New("still pending"))
		})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 3, calls)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 3, te.Attempts)
	assert.EqualError(t, te.Last, "still pending")
}

func TestPoll_FatalErrorStopsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Poll(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 10},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, boom
		})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestPoll_FatalAfterRetryable(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Poll(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 10},
		func(ctx context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, Retry(nil)
			}
			return 0, boom
		})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestPoll_NoSleepAfterLastAttempt(t *testing.T) {
	start := time.Now()
	_, err := Poll(context.Background(), Options{Interval: 300 * time.Millisecond, MaxAttempts: 1},
		func(ctx context.Context) (int, error) {
			return 0, Retry(nil)
		})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestPoll_ContextCancellationStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Poll(ctx, Options{Interval: 5 * time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return 0, Retry(nil)
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestPoll_MaxElapsedBoundsUnlimitedAttempts(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), Options{Interval: 10 * time.Millisecond, MaxElapsed: 60 * time.Millisecond},
		func(ctx context.Context) (int, error) {
			calls++
			return 0, Retry(errors.New("unproven"))
		})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, calls, 2)
	assert.Less(t, calls, 20)
}

func TestRetry_NilErrorStillRetryable(t *testing.T) {
	err := Retry(nil)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
}
