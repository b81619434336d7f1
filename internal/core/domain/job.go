package domain

import (
	"time"

	"github.com/google/uuid"
)

// Delivery job lifecycle states. A job is created pending, may bounce
// between delayed and dispatchable while quotas defer it, and ends in
// sent or failed. Sent and failed are terminal.
const (
	JobStatusPending = "pending"
	JobStatusDelayed = "delayed"
	JobStatusSent    = "sent"
	JobStatusFailed  = "failed"
)

// DeliveryJob is one recipient's scheduled send within a campaign and the
// unit of idempotent delivery. Its ID doubles as the delay-queue identity.
// QueueTicket records the queue entry currently owning the job so a worker
// holding a superseded ticket can detect it is processing a stale duplicate.
type DeliveryJob struct {
	ID           uuid.UUID
	CampaignID   uuid.UUID
	SenderID     string
	Recipient    string
	Subject      string
	Body         string
	ScheduledAt  time.Time
	Status       string
	ErrorMessage *string
	QueueTicket  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SentAt       *time.Time
}

// Terminal reports whether the job has reached a final state.
func (j *DeliveryJob) Terminal() bool {
	return j.Status == JobStatusSent || j.Status == JobStatusFailed
}
