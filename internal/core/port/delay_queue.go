package port

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobPayload is the fixed payload schema carried through the delay queue.
// It is validated at the scheduler boundary; the dispatcher trusts it.
type JobPayload struct {
	JobID      uuid.UUID `json:"job_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	SenderID   string    `json:"sender_id"`
	Recipient  string    `json:"recipient"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
}

// Delivery is one at-least-once handoff of a due queue entry to a worker.
// Ticket identifies this particular queue entry; Attempt counts prior
// failed attempts of the same entry.
type Delivery struct {
	Ticket  string
	Attempt int
	Payload JobPayload
}

// DeadLetter records a queue entry that exhausted its retry budget. Dead
// letters are kept for inspection rather than discarded silently.
type DeadLetter struct {
	Ticket   string
	Payload  JobPayload
	Attempts int
	LastErr  string
	FailedAt time.Time
}

// DelayQueue holds delivery jobs keyed by due time and hands each to
// exactly one consumer no earlier than that time, with at-least-once
// semantics. Duplicate delivery under failure is possible and must be
// tolerated by the dispatcher's idempotency checks, not prevented here.
type DelayQueue interface {
	// Enqueue schedules payload for delivery after delay and returns the
	// ticket of the queue entry. When an entry with the same idempotency
	// key is already pending, no second dispatchable duplicate is created
	// and the existing entry's ticket is returned. A superseding enqueue
	// (a deferral) must use a distinct derived key per reschedule event.
	Enqueue(ctx context.Context, payload JobPayload, delay time.Duration, idemKey string) (string, error)
	// Dequeue blocks until an entry is due and returns it. Many concurrent
	// dequeuers may pull from one logical queue. It returns an error only
	// when ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack completes a delivery, dropping the entry for good.
	Ack(ticket string)
	// Nack reports a failed handling attempt. The entry is re-offered with
	// exponentially increasing delay up to a bounded attempt count, then
	// moved to the dead-letter sink.
	Nack(ticket string, cause error)
}
