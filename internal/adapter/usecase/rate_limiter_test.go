package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRateLimiterGlobalLimit(t *testing.T) {
	ctx := context.Background()
	counters := newMemCounters()
	l := NewRateLimiter(counters, 2, 10)

	ok, err := l.Allowed(ctx, "sender-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.RecordSend(ctx, "sender-a"))
	require.NoError(t, l.RecordSend(ctx, "sender-b"))

	ok, err = l.Allowed(ctx, "sender-c")
	require.NoError(t, err)
	require.False(t, ok, "global count at limit must block every sender")
}

func TestRateLimiterPerSenderLimit(t *testing.T) {
	ctx := context.Background()
	counters := newMemCounters()
	l := NewRateLimiter(counters, 100, 1)

	require.NoError(t, l.RecordSend(ctx, "sender-a"))

	ok, err := l.Allowed(ctx, "sender-a")
	require.NoError(t, err)
	require.False(t, ok, "sender-a exhausted its own quota")

	ok, err = l.Allowed(ctx, "sender-b")
	require.NoError(t, err)
	require.True(t, ok, "other senders are unaffected")
}

func TestRateLimiterWindowRollover(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 30, 14, 59, 0, 0, time.UTC)
	counters := newMemCounters()
	l := NewRateLimiter(counters, 1, 1)
	l.now = fixedClock(base)

	require.NoError(t, l.RecordSend(ctx, "s"))
	ok, err := l.Allowed(ctx, "s")
	require.NoError(t, err)
	require.False(t, ok)

	// A minute later the next hour window is active and counts restart.
	l.now = fixedClock(base.Add(time.Minute))
	ok, err = l.Allowed(ctx, "s")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRateLimiterNextWindowStart(t *testing.T) {
	l := NewRateLimiter(newMemCounters(), 1, 1)
	now := time.Date(2025, 1, 30, 14, 59, 59, 0, time.UTC)
	require.Equal(t, time.Date(2025, 1, 30, 15, 0, 0, 0, time.UTC), l.NextWindowStart(now))

	exactly := time.Date(2025, 1, 30, 15, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 1, 30, 16, 0, 0, 0, time.UTC), l.NextWindowStart(exactly))
}

func TestRateLimiterCountersExpire(t *testing.T) {
	ctx := context.Background()
	counters := newMemCounters()
	base := time.Now()
	counters.now = fixedClock(base)

	l := NewRateLimiter(counters, 10, 10)
	l.now = fixedClock(base)
	require.NoError(t, l.RecordSend(ctx, "s"))

	// After two windows the keys are expired and sweepable.
	counters.now = fixedClock(base.Add(counterTTL + time.Minute))
	n, err := counters.DeleteExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
