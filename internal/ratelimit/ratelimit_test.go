package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmember/clubmember/internal/store"
)

func newLimiter(t *testing.T) (*Limiter, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(st, 3, 10*time.Minute, logger), st
}

func TestAllowFreshPair(t *testing.T) {
	l, _ := newLimiter(t)

	ok, err := l.Allow(context.Background(), "599123456", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBlocksAfterMaxAttempts(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "599123456", "203.0.113.7")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d should be allowed", i+1)
		require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))
	}

	ok, err := l.Allow(ctx, "599123456", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndependentBudgetPerIP(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))
	}

	ok, err := l.Allow(ctx, "599123456", "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, ok, "same phone from a different IP has its own budget")
}

func TestReset(t *testing.T) {
	l, _ := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))
	}
	require.NoError(t, l.Reset(ctx, "599123456", "203.0.113.7"))

	ok, err := l.Allow(ctx, "599123456", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIncrementDoesNotRefreshWindow(t *testing.T) {
	// A second attempt late in the window must not extend it: the whole
	// budget expires together, anchored at the first attempt.
	l, _ := newLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))
	require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))

	// RecordAttempt went through SetKeepTTL for the second write; the
	// memory store enforces that the expiry was not moved, which the
	// store-level TestMemoryStoreSetKeepTTL pins down. Here we only assert
	// the counter advanced.
	ok, err := l.Allow(ctx, "599123456", "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.RecordAttempt(ctx, "599123456", "203.0.113.7"))
	ok, err = l.Allow(ctx, "599123456", "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
}
