package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairhub/notify/internal/model"
)

func TestAcquireWithinBurst(t *testing.T) {
	l := NewChannelLimiter(map[model.Channel]BucketConfig{
		model.ChannelEmail: {PerSecond: 1, Burst: 3},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx, model.ChannelEmail))
	}
}

func TestAcquireBlocksWhenExhausted(t *testing.T) {
	l := NewChannelLimiter(map[model.Channel]BucketConfig{
		model.ChannelSMS: {PerSecond: 0.1, Burst: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, model.ChannelSMS))
	err := l.Acquire(ctx, model.ChannelSMS)
	assert.Error(t, err, "second token should not be available within the deadline")
}

func TestAcquireUnconfiguredChannelIsUnlimited(t *testing.T) {
	l := NewChannelLimiter(nil)

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), model.ChannelInApp))
	}
}

func TestZeroBucketMeansUnlimited(t *testing.T) {
	// A missing or zeroed rate_limits section must not starve delivery: a
	// literal zero bucket would reject every single Acquire.
	l := NewChannelLimiter(map[model.Channel]BucketConfig{
		model.ChannelEmail: {},
		model.ChannelSMS:   {PerSecond: 0, Burst: 5},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(ctx, model.ChannelEmail))
		require.NoError(t, l.Acquire(ctx, model.ChannelSMS))
	}
}

func TestSetLimitZeroRemovesBucket(t *testing.T) {
	l := NewChannelLimiter(map[model.Channel]BucketConfig{
		model.ChannelSMS: {PerSecond: 0.1, Burst: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Acquire(ctx, model.ChannelSMS))
	require.Error(t, l.Acquire(ctx, model.ChannelSMS))

	l.SetLimit(model.ChannelSMS, BucketConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), model.ChannelSMS))
	}
}

func TestSetLimitCreatesAndAdjusts(t *testing.T) {
	l := NewChannelLimiter(nil)
	l.SetLimit(model.ChannelEmail, BucketConfig{PerSecond: 0.01, Burst: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Acquire(ctx, model.ChannelEmail))
	assert.Error(t, l.Acquire(ctx, model.ChannelEmail))

	l.SetLimit(model.ChannelEmail, BucketConfig{PerSecond: 1000, Burst: 100})
	assert.NoError(t, l.Acquire(context.Background(), model.ChannelEmail))
}
