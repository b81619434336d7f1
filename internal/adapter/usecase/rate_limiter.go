package usecase

import (
	"context"
	"fmt"
	"time"

	"dripmail/internal/core/port"
)

// counterTTL bounds counter lifetime to about two hour windows so stale
// keys never accumulate in the backing store.
const counterTTL = 2 * time.Hour

// RateLimiter tracks rolling-hour send counts, global and per-sender, on
// top of an atomic-increment key-value store. Counts live outside process
// memory so multiple dispatcher instances share one budget.
//
// The window key is wall-clock time truncated to the hour. A send
// straddling a boundary is attributed to the window active at increment
// time, not at check time; check-then-increment is not atomic across the
// boundary and the minor over/under-count there is accepted.
type RateLimiter struct {
	counters    port.CounterStore
	globalLimit int
	senderLimit int
	now         func() time.Time
}

// NewRateLimiter builds a limiter enforcing globalLimit across all
// senders and senderLimit per individual sender, both per rolling hour.
func NewRateLimiter(counters port.CounterStore, globalLimit, senderLimit int) *RateLimiter {
	return &RateLimiter{
		counters:    counters,
		globalLimit: globalLimit,
		senderLimit: senderLimit,
		now:         time.Now,
	}
}

// Allowed reports whether one more send fits under both hourly quotas.
func (l *RateLimiter) Allowed(ctx context.Context, senderID string) (bool, error) {
	window := hourWindow(l.now())

	global, err := l.counters.Get(ctx, globalKey(window))
	if err != nil {
		return false, fmt.Errorf("get global counter: %w", err)
	}
	if global >= int64(l.globalLimit) {
		return false, nil
	}

	if senderID != "" {
		sender, err := l.counters.Get(ctx, senderKey(window, senderID))
		if err != nil {
			return false, fmt.Errorf("get sender counter: %w", err)
		}
		if sender >= int64(l.senderLimit) {
			return false, nil
		}
	}
	return true, nil
}

// RecordSend increments the global and per-sender counters for the current
// hour window. Call it only after a confirmed successful send.
func (l *RateLimiter) RecordSend(ctx context.Context, senderID string) error {
	window := hourWindow(l.now())

	if _, err := l.counters.Increment(ctx, globalKey(window), counterTTL); err != nil {
		return fmt.Errorf("increment global counter: %w", err)
	}
	if senderID != "" {
		if _, err := l.counters.Increment(ctx, senderKey(window, senderID), counterTTL); err != nil {
			return fmt.Errorf("increment sender counter: %w", err)
		}
	}
	return nil
}

// NextWindowStart returns the start of the hour window following now.
func (l *RateLimiter) NextWindowStart(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}

// hourWindow formats t as the UTC hour bucket, e.g. "2025-01-30T14".
func hourWindow(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

func globalKey(window string) string {
	return "rate:global:" + window
}

func senderKey(window, senderID string) string {
	return "rate:sender:" + window + ":" + senderID
}
