package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterBurstThenBlocks(t *testing.T) {
	rl := newRateLimiter(2)

	assert.True(t, rl.tryAcquire())
	assert.True(t, rl.tryAcquire())
	assert.False(t, rl.tryAcquire())
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(60)
	for i := 0; i < 60; i++ {
		require.True(t, rl.tryAcquire())
	}
	require.False(t, rl.tryAcquire())

	// 60/min refills one token per second; backdate instead of sleeping.
	rl.mu.Lock()
	rl.lastRefill = rl.lastRefill.Add(-time.Second)
	rl.mu.Unlock()

	assert.True(t, rl.tryAcquire())
	assert.False(t, rl.tryAcquire())
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	rl := newRateLimiter(1)
	require.NoError(t, rl.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
