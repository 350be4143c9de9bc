package llm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/ordertrail/internal/common"
)

func TestNewClient(t *testing.T) {
	t.Run("anthropic", func(t *testing.T) {
		client, err := NewClient(Config{Provider: "anthropic", APIKey: "key"})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("openai", func(t *testing.T) {
		client, err := NewClient(Config{Provider: "OpenAI", APIKey: "key"})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "anthropic"})
		assert.Error(t, err)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "carrier-pigeon", APIKey: "key"})
		assert.Error(t, err)
	})
}

func TestStatusToError(t *testing.T) {
	assert.NoError(t, statusToError("anthropic", http.StatusOK, nil))

	err := statusToError("anthropic", http.StatusTooManyRequests, nil)
	assert.ErrorIs(t, err, common.ErrThrottled)
	assert.True(t, common.IsRetryable(err))

	err = statusToError("openai", http.StatusBadGateway, []byte("gateway"))
	assert.ErrorIs(t, err, common.ErrServerError)
	assert.True(t, common.IsRetryable(err))

	err = statusToError("anthropic", http.StatusBadRequest, []byte("bad request"))
	assert.Error(t, err)
	assert.False(t, common.IsRetryable(err))
}

func TestRateLimiter(t *testing.T) {
	t.Run("grants up to capacity without blocking", func(t *testing.T) {
		rl := newRateLimiter(3)
		defer rl.stop()

		for i := 0; i < 3; i++ {
			assert.True(t, rl.tryAcquire())
		}
		assert.False(t, rl.tryAcquire())
	})

	t.Run("wait honors cancellation when exhausted", func(t *testing.T) {
		rl := newRateLimiter(1)
		defer rl.stop()
		require.True(t, rl.tryAcquire())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := rl.wait(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
