package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dripmail/internal/core/domain"
	"dripmail/internal/core/port"
)

// JobRepository implements port.JobStore using pgxpool for PostgreSQL.
// Status transitions are plain conditional UPDATEs: the WHERE clause
// carries the compare-and-set preconditions and the affected row count
// tells whether the caller won the race.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository returns a new repository instance.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// CreateCampaign persists a campaign. The inter-message delay is stored
// in milliseconds.
func (r *JobRepository) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO campaigns
    (id, sender_id, subject, body, start_time, delay_between_ms, hourly_limit, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.SenderID, c.Subject, c.Body, c.StartTime,
		c.DelayBetween.Milliseconds(), c.HourlyLimit, c.Status, c.CreatedAt)
	return err
}

// CreateJobs inserts all delivery jobs in one transaction so a campaign
// never ends up with a partially materialized recipient list.
func (r *JobRepository) CreateJobs(ctx context.Context, jobs []domain.DeliveryJob) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()
	for i := range jobs {
		j := &jobs[i]
		_, err = tx.Exec(ctx, `INSERT INTO delivery_jobs
    (id, campaign_id, sender_id, recipient, subject, body, scheduled_at, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			j.ID, j.CampaignID, j.SenderID, j.Recipient, j.Subject, j.Body,
			j.ScheduledAt, j.Status, j.CreatedAt, j.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

const jobColumns = `id, campaign_id, sender_id, recipient, subject, body,
    scheduled_at, status, error_message, queue_ticket, created_at, updated_at, sent_at`

// GetJob returns the job by id, or nil when it does not exist.
func (r *JobRepository) GetJob(ctx context.Context, id uuid.UUID) (*domain.DeliveryJob, error) {
	var j domain.DeliveryJob
	err := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM delivery_jobs WHERE id = $1`, id).
		Scan(&j.ID, &j.CampaignID, &j.SenderID, &j.Recipient, &j.Subject, &j.Body,
			&j.ScheduledAt, &j.Status, &j.ErrorMessage, &j.QueueTicket,
			&j.CreatedAt, &j.UpdatedAt, &j.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// SetJobTicket records the queue ticket currently owning the job.
func (r *JobRepository) SetJobTicket(ctx context.Context, id uuid.UUID, ticket string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE delivery_jobs SET queue_ticket = $2, updated_at = now() WHERE id = $1`,
		id, ticket)
	return err
}

// MarkSent finalizes the job as sent and clears any earlier transient
// error. Only an already-sent job is untouchable; a failed job whose
// retry went through is corrected, since delivery is confirmed. A NULL
// ticket means the job was never claimed, so the finalizing update
// claims it.
func (r *JobRepository) MarkSent(ctx context.Context, id uuid.UUID, expectedTicket string, sentAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE delivery_jobs
SET status = $2, sent_at = $3, error_message = NULL, queue_ticket = $5, updated_at = now()
WHERE id = $1 AND status <> $4 AND (queue_ticket IS NULL OR queue_ticket = $5)`,
		id, domain.JobStatusSent, sentAt,
		domain.JobStatusSent, expectedTicket)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a terminal failure with its error message. A job
// already sent is left untouched.
func (r *JobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE delivery_jobs
SET status = $2, error_message = $3, updated_at = now()
WHERE id = $1 AND status <> $4`,
		id, domain.JobStatusFailed, errMsg, domain.JobStatusSent)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDelayed moves a non-terminal job's due time forward and hands
// ownership to the deferral's queue ticket.
func (r *JobRepository) MarkDelayed(ctx context.Context, id uuid.UUID, scheduledAt time.Time, ticket string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE delivery_jobs
SET status = $2, scheduled_at = $3, queue_ticket = $4, updated_at = now()
WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, domain.JobStatusDelayed, scheduledAt, ticket,
		domain.JobStatusSent, domain.JobStatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListJobs returns one page of jobs plus the unpaginated total. The
// scheduled class is ordered by due time ascending, the finished class
// by last update descending, matching the reporting surface.
func (r *JobRepository) ListJobs(ctx context.Context, filter port.JobFilter) (*port.JobPage, error) {
	statuses := []string{domain.JobStatusPending, domain.JobStatusDelayed}
	order := "scheduled_at ASC"
	if filter.Class == port.JobClassFinished {
		statuses = []string{domain.JobStatusSent, domain.JobStatusFailed}
		order = "updated_at DESC"
	}

	where := `status = ANY($1)`
	args := []any{statuses}
	if filter.SenderID != "" {
		where += ` AND sender_id = $2`
		args = append(args, filter.SenderID)
	}

	page := &port.JobPage{}
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM delivery_jobs WHERE `+where, args...).Scan(&page.Total); err != nil {
		return nil, err
	}

	limitPos := len(args) + 1
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM delivery_jobs WHERE `+where+
			` ORDER BY `+order+` LIMIT $`+strconv.Itoa(limitPos)+` OFFSET $`+strconv.Itoa(limitPos+1),
		args...)
	if err != nil {
		return nil, err
	}
	page.Jobs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.DeliveryJob, error) {
		var j domain.DeliveryJob
		err := row.Scan(&j.ID, &j.CampaignID, &j.SenderID, &j.Recipient, &j.Subject, &j.Body,
			&j.ScheduledAt, &j.Status, &j.ErrorMessage, &j.QueueTicket,
			&j.CreatedAt, &j.UpdatedAt, &j.SentAt)
		return j, err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
