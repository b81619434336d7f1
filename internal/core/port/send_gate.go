package port

import (
	"context"
	"time"
)

// SendGate answers whether a dispatch may proceed under the rolling-hour
// quotas, and records confirmed sends. RecordSend must be called only
// after a successful send; a failed send never increments.
type SendGate interface {
	// Allowed reports whether the current global and per-sender hourly
	// counts are both below their limits.
	Allowed(ctx context.Context, senderID string) (bool, error)
	// RecordSend increments the global and per-sender counters for the
	// hour window active at increment time.
	RecordSend(ctx context.Context, senderID string) error
	// NextWindowStart returns the start of the hour window following now,
	// i.e. how far a throttled job must be deferred.
	NextWindowStart(now time.Time) time.Time
}
