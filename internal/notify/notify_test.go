package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryableStatus(t *testing.T) {
	assert.True(t, retryableStatus(500))
	assert.True(t, retryableStatus(503))
	assert.True(t, retryableStatus(0))
	assert.False(t, retryableStatus(400))
	assert.False(t, retryableStatus(404))
}

func TestWithBackoffRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := withBackoffRetry(context.Background(), "test", 3, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := withBackoffRetry(context.Background(), "test", 3, func(ctx context.Context) (bool, error) {
		calls++
		return false, errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffRetryExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	err := withBackoffRetry(context.Background(), "test", 2, func(ctx context.Context) (bool, error) {
		calls++
		return true, errors.New("server error")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithBackoffRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := withBackoffRetry(ctx, "test", 3, func(ctx context.Context) (bool, error) {
		calls++
		return true, errors.New("first failure")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
