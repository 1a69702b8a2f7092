package retry_test

import (
	"testing"
	"time"

	"github.com/gonzalop/xfer/internal/retry"
	"github.com/stretchr/testify/require"
)

func TestNextGrowsAndCapsAtMax(t *testing.T) {
	b := retry.New(retry.Policy{Base: 10 * time.Millisecond, Multiplier: 2, Max: 50 * time.Millisecond})

	for i := 0; i < 10; i++ {
		d, ok := b.Next()
		require.True(t, ok)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 50*time.Millisecond+10*time.Millisecond)
	}
	require.Equal(t, 10, b.Retries())
}

func TestMaxRetriesExhausts(t *testing.T) {
	b := retry.New(retry.Policy{Base: time.Millisecond, Multiplier: 2, Max: time.Second, MaxRetries: 2})

	_, ok := b.Next()
	require.True(t, ok)
	_, ok = b.Next()
	require.True(t, ok)
	_, ok = b.Next()
	require.False(t, ok)
}

func TestResetClearsRetries(t *testing.T) {
	b := retry.New(retry.Policy{Base: time.Millisecond, Multiplier: 2, Max: time.Second, MaxRetries: 1})
	_, ok := b.Next()
	require.True(t, ok)
	b.Reset()
	_, ok = b.Next()
	require.True(t, ok)
	require.Equal(t, 1, b.Retries())
}

func TestZeroPolicyUsesDefault(t *testing.T) {
	b := retry.New(retry.Policy{})
	d, ok := b.Next()
	require.True(t, ok)
	require.Greater(t, d, time.Duration(0))
}
