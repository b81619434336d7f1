package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dripmail/internal/core/domain"
	"dripmail/internal/core/port"
)

// Scheduler converts a campaign request into individually time-stamped
// delivery jobs: one job per recipient, due at start + index*delay. It
// implements the port.Scheduler primary port.
type Scheduler struct {
	store  port.JobStore
	queue  port.DelayQueue
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler creates a scheduler persisting into store and enqueuing
// into queue.
func NewScheduler(store port.JobStore, queue port.DelayQueue, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, queue: queue, logger: logger, now: time.Now}
}

// Schedule validates the request, persists the campaign and all delivery
// jobs as pending, then enqueues each job with delay max(0, due-now) and
// the job id as idempotency key, recording the returned ticket on the job.
//
// Jobs are persisted before any enqueue so a crash mid-loop leaves valid
// pending rows a reconciliation sweep can re-enqueue; nothing is ever
// silently lost. An enqueue failure therefore aborts the loop but still
// returns the campaign id and the summaries created so far.
func (s *Scheduler) Schedule(ctx context.Context, req port.ScheduleRequest) (*port.ScheduleResult, error) {
	now := s.now()
	if len(req.Recipients) == 0 {
		return nil, port.ErrNoRecipients
	}
	if !req.StartTime.After(now) {
		return nil, port.ErrStartNotFuture
	}
	if req.DelayBetween < 0 {
		return nil, port.ErrNegativeDelay
	}

	campaign := &domain.Campaign{
		ID:           uuid.New(),
		SenderID:     req.SenderID,
		Subject:      req.Subject,
		Body:         req.Body,
		StartTime:    req.StartTime,
		DelayBetween: req.DelayBetween,
		HourlyLimit:  req.HourlyLimit,
		Status:       domain.CampaignStatusScheduled,
		CreatedAt:    now,
	}
	if err := s.store.CreateCampaign(ctx, campaign); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	jobs := make([]domain.DeliveryJob, 0, len(req.Recipients))
	for i, recipient := range req.Recipients {
		jobs = append(jobs, domain.DeliveryJob{
			ID:          uuid.New(),
			CampaignID:  campaign.ID,
			SenderID:    req.SenderID,
			Recipient:   recipient,
			Subject:     req.Subject,
			Body:        req.Body,
			ScheduledAt: req.StartTime.Add(time.Duration(i) * req.DelayBetween),
			Status:      domain.JobStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if err := s.store.CreateJobs(ctx, jobs); err != nil {
		return nil, fmt.Errorf("create jobs: %w", err)
	}

	result := &port.ScheduleResult{
		CampaignID: campaign.ID,
		StartTime:  req.StartTime,
		Jobs:       make([]port.JobSummary, 0, len(jobs)),
	}
	for i := range jobs {
		job := &jobs[i]
		delay := max(time.Duration(0), job.ScheduledAt.Sub(s.now()))
		payload := port.JobPayload{
			JobID:      job.ID,
			CampaignID: campaign.ID,
			SenderID:   job.SenderID,
			Recipient:  job.Recipient,
			Subject:    job.Subject,
			Body:       job.Body,
		}
		ticket, err := s.queue.Enqueue(ctx, payload, delay, job.ID.String())
		if err != nil {
			s.logger.Error("enqueue failed, pending jobs await reconciliation",
				slog.String("campaign_id", campaign.ID.String()),
				slog.String("job_id", job.ID.String()),
				slog.Int("enqueued", i),
				slog.Any("error", err))
			return result, fmt.Errorf("enqueue job %s: %w", job.ID, err)
		}
		if err = s.store.SetJobTicket(ctx, job.ID, ticket); err != nil {
			return result, fmt.Errorf("record ticket for job %s: %w", job.ID, err)
		}
		result.Jobs = append(result.Jobs, port.JobSummary{
			ID:          job.ID,
			Recipient:   job.Recipient,
			ScheduledAt: job.ScheduledAt,
		})
	}

	s.logger.Info("campaign scheduled",
		slog.String("campaign_id", campaign.ID.String()),
		slog.String("sender_id", req.SenderID),
		slog.Int("jobs", len(result.Jobs)),
		slog.Time("start", req.StartTime))
	return result, nil
}

// ListJobs exposes the read-side reporting over delivery jobs.
func (s *Scheduler) ListJobs(ctx context.Context, filter port.JobFilter) (*port.JobPage, error) {
	return s.store.ListJobs(ctx, filter)
}
