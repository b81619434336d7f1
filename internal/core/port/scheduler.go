package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors returned before any persistence takes place. A request
// rejected with one of these leaves no partial state behind.
var (
	ErrStartNotFuture = errors.New("start time must be in the future")
	ErrNoRecipients   = errors.New("at least one recipient is required")
	ErrNegativeDelay  = errors.New("delay between messages must not be negative")
)

// ScheduleRequest describes a campaign to fan out: every recipient gets
// one delivery job due at StartTime + index*DelayBetween.
type ScheduleRequest struct {
	SenderID     string
	Subject      string
	Body         string
	Recipients   []string
	StartTime    time.Time
	DelayBetween time.Duration
	HourlyLimit  int
}

// JobSummary is the caller-facing digest of one created delivery job.
type JobSummary struct {
	ID          uuid.UUID
	Recipient   string
	ScheduledAt time.Time
}

// ScheduleResult reports what a schedule request created.
type ScheduleResult struct {
	CampaignID uuid.UUID
	StartTime  time.Time
	Jobs       []JobSummary
}

// Scheduler is the primary port into the scheduling engine: campaign
// fan-out plus the read-side job reporting consumed by the API layer.
type Scheduler interface {
	// Schedule validates the request, persists the campaign and one
	// pending delivery job per recipient, then enqueues each job into the
	// delay queue. Partial enqueue failure leaves the already-created
	// pending jobs valid and recoverable, never silently lost.
	Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error)
	// ListJobs exposes job-status queries by filter for reporting.
	ListJobs(ctx context.Context, filter JobFilter) (*JobPage, error)
}
