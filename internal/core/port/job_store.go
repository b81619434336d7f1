package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dripmail/internal/core/domain"
)

// JobClass selects the reporting view over delivery job states. Scheduled
// covers pending and delayed jobs, Finished covers sent and failed ones.
type JobClass string

const (
	JobClassScheduled JobClass = "scheduled"
	JobClassFinished  JobClass = "finished"
)

// JobFilter narrows ListJobs results. SenderID is optional; an empty
// string matches every sender. Limit and Offset page the result set.
type JobFilter struct {
	Class    JobClass
	SenderID string
	Limit    int
	Offset   int
}

// JobPage is one page of delivery jobs plus the unpaginated total.
type JobPage struct {
	Jobs  []domain.DeliveryJob
	Total int64
}

// JobStore is the authoritative persisted record of campaign and delivery
// job state. It is an outbound port; implementations must be
// concurrency-safe. All mutating job operations use compare-and-set
// semantics so that two workers racing on the same job cannot both win:
// they return true only when the expected preconditions held and the row
// was updated.
type JobStore interface {
	// CreateCampaign persists a new campaign.
	CreateCampaign(ctx context.Context, c *domain.Campaign) error
	// CreateJobs persists the given delivery jobs. Jobs must exist before
	// any queue entry referencing them so a crash between persistence and
	// enqueue stays recoverable.
	CreateJobs(ctx context.Context, jobs []domain.DeliveryJob) error
	// GetJob returns the job by id, or nil when no such job exists.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.DeliveryJob, error)
	// SetJobTicket records the delay-queue ticket currently owning the job.
	SetJobTicket(ctx context.Context, id uuid.UUID, ticket string) error
	// MarkSent transitions the job to sent with the given send time,
	// clearing any transient error from an earlier attempt. A failed job
	// whose retry delivered is corrected to sent; only an already-sent
	// job is untouchable. The update applies when the job carries
	// expectedTicket or no ticket at all (then the update claims it); it
	// returns false when another attempt won the race.
	MarkSent(ctx context.Context, id uuid.UUID, expectedTicket string, sentAt time.Time) (bool, error)
	// MarkFailed transitions the job to failed preserving the error message
	// for operator visibility. A job already sent is never overwritten.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)
	// MarkDelayed defers a non-terminal job: status delayed, due time moved
	// to scheduledAt, ownership handed to ticket.
	MarkDelayed(ctx context.Context, id uuid.UUID, scheduledAt time.Time, ticket string) (bool, error)
	// ListJobs returns a page of jobs for the read-side reporting surface.
	ListJobs(ctx context.Context, filter JobFilter) (*JobPage, error)
}
