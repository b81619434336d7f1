package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dripmail/internal/core/domain"
	"dripmail/internal/core/port"
)

// Outcome classifies one dispatch attempt. Rate-limit deferral and
// idempotent skips are ordinary control flow, not errors; only Failed
// feeds the delay queue's retry machinery.
type Outcome int

const (
	// OutcomeSent means the message went out and the job is finalized.
	OutcomeSent Outcome = iota
	// OutcomeDeferred means a quota was exhausted and the job was
	// rescheduled to the next hour window.
	OutcomeDeferred
	// OutcomeSkipped means the job was already handled elsewhere: sent
	// before, or owned by a newer queue ticket.
	OutcomeSkipped
	// OutcomeFailed means the attempt failed and the queue decides
	// whether to retry.
	OutcomeFailed
)

// ErrJobMissing signals a queue entry referencing a job absent from the
// store. That is a data-integrity problem, fatal for the job: it is
// surfaced loudly and never retried.
var ErrJobMissing = errors.New("delivery job referenced by queue not found in store")

// Dispatcher is the bounded worker pool draining due jobs from the delay
// queue. Each worker enforces the idempotency checks, consults the send
// gate, paces on the pool-wide token, invokes the message sender and
// finalizes job state. The pacer is the single globally shared mutable
// counter; everything else is partitioned per job id.
type Dispatcher struct {
	store   port.JobStore
	queue   port.DelayQueue
	sender  port.MessageSender
	gate    port.SendGate
	pacer   *rate.Limiter
	logger  *slog.Logger
	workers int
	now     func() time.Time

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher with the given pool size and minimum
// wall-clock interval between any two dispatch attempts across the pool.
func NewDispatcher(store port.JobStore, queue port.DelayQueue, sender port.MessageSender, gate port.SendGate, workers int, minSendInterval time.Duration, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	pacer := rate.NewLimiter(rate.Inf, 1)
	if minSendInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(minSendInterval), 1)
	}
	return &Dispatcher{
		store:   store,
		queue:   queue,
		sender:  sender,
		gate:    gate,
		pacer:   pacer,
		logger:  logger,
		workers: workers,
		now:     time.Now,
	}
}

// Start launches the worker pool. Workers stop pulling new jobs once ctx
// is done; use Wait for in-flight attempts to finish.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.worker(ctx, i)
	}
	d.logger.Info("dispatcher started",
		slog.Int("workers", d.workers))
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, idx int) {
	defer d.wg.Done()
	log := d.logger.With(slog.Int("worker", idx))
	for {
		delivery, err := d.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Info("worker stopping", slog.Any("reason", err))
			}
			return
		}

		outcome, err := d.Process(ctx, delivery)
		if outcome == OutcomeFailed {
			d.queue.Nack(delivery.Ticket, err)
			continue
		}
		d.queue.Ack(delivery.Ticket)
	}
}

// Process runs the per-job dispatch algorithm for one delivery and
// reports the outcome. The returned error is non-nil only alongside
// OutcomeFailed.
func (d *Dispatcher) Process(ctx context.Context, delivery *port.Delivery) (Outcome, error) {
	jobID := delivery.Payload.JobID
	log := d.logger.With(
		slog.String("job_id", jobID.String()),
		slog.String("ticket", delivery.Ticket))

	job, err := d.store.GetJob(ctx, jobID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		log.Error("queue references missing job, treating as fatal for this job")
		return OutcomeFailed, ErrJobMissing
	}
	if job.Status == domain.JobStatusSent {
		log.Info("job already sent, skipping")
		return OutcomeSkipped, nil
	}
	if job.QueueTicket != nil && *job.QueueTicket != delivery.Ticket {
		log.Info("job owned by another queue ticket, skipping",
			slog.String("owner", *job.QueueTicket))
		return OutcomeSkipped, nil
	}

	allowed, err := d.gate.Allowed(ctx, job.SenderID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		return d.deferToNextWindow(ctx, delivery, job, log)
	}

	if err = d.pacer.Wait(ctx); err != nil {
		return OutcomeFailed, fmt.Errorf("pacing wait: %w", err)
	}

	messageID, sendErr := d.sender.Send(ctx, job.Recipient, job.Subject, job.Body)
	if sendErr != nil {
		if _, err = d.store.MarkFailed(ctx, jobID, sendErr.Error()); err != nil {
			log.Error("record failure", slog.Any("error", err))
		}
		log.Warn("send failed", slog.Any("error", sendErr))
		return OutcomeFailed, sendErr
	}

	if err = d.gate.RecordSend(ctx, job.SenderID); err != nil {
		// The send went out; losing one advisory count beats retrying
		// and double-sending.
		log.Error("record send count", slog.Any("error", err))
	}
	ok, err := d.store.MarkSent(ctx, jobID, delivery.Ticket, d.now())
	if err != nil {
		log.Error("mark sent", slog.Any("error", err))
	} else if !ok {
		log.Warn("job finalized by a concurrent attempt")
	}
	log.Info("message sent", slog.String("message_id", messageID))
	return OutcomeSent, nil
}

// deferToNextWindow reschedules a throttled job to the next hour window under a
// fresh idempotency key derived from the job id and the window start, so
// the deferral does not collide with the entry being processed.
func (d *Dispatcher) deferToNextWindow(ctx context.Context, delivery *port.Delivery, job *domain.DeliveryJob, log *slog.Logger) (Outcome, error) {
	now := d.now()
	nextWindow := d.gate.NextWindowStart(now)
	delay := max(time.Duration(0), nextWindow.Sub(now))
	idemKey := fmt.Sprintf("%s:retry:%d", job.ID, nextWindow.UnixMilli())

	ticket, err := d.queue.Enqueue(ctx, delivery.Payload, delay, idemKey)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("re-enqueue throttled job: %w", err)
	}
	if _, err = d.store.MarkDelayed(ctx, job.ID, nextWindow, ticket); err != nil {
		return OutcomeFailed, fmt.Errorf("mark delayed: %w", err)
	}
	log.Info("hourly quota reached, job deferred",
		slog.Time("next_window", nextWindow),
		slog.String("new_ticket", ticket))
	return OutcomeDeferred, nil
}
