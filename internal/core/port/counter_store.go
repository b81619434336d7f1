package port

import (
	"context"
	"time"
)

// CounterStore is a key-value capability with atomic increment and
// per-key expiry, backing the rolling-hour rate counters. Counts are
// advisory bookkeeping only; whether a message was actually sent is
// always answered by the job store, never by a counter.
type CounterStore interface {
	// Increment atomically adds one to the counter at key, refreshing its
	// expiry to now+ttl, and returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Get returns the current count at key, or zero when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (int64, error)
	// DeleteExpired removes expired counters and returns how many were
	// dropped. Purely housekeeping; Get already ignores expired keys.
	DeleteExpired(ctx context.Context) (int64, error)
}
