// Package queue provides an in-process delayed-work queue with per-entry
// idempotency keys, bounded retries with exponential backoff and a
// dead-letter sink. It delivers each entry to exactly one consumer no
// earlier than its due time, with at-least-once semantics: a consumer
// that neither acks nor nacks before shutdown may see the entry again.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dripmail/internal/core/port"
)

// ErrClosed is returned by Enqueue and Dequeue after Close.
var ErrClosed = errors.New("delay queue is closed")

// Config tunes the retry policy. MaxAttempts bounds how often a nacked
// entry is re-offered before it dead-letters; BackoffBase is the first
// retry delay, doubled on every further attempt.
type Config struct {
	MaxAttempts int
	BackoffBase time.Duration
}

type entry struct {
	ticket  string
	idemKey string
	payload port.JobPayload
	dueAt   time.Time
	attempt int
	index   int // position in the heap, maintained by heap.Interface
}

// DelayQueue implements port.DelayQueue. A single timer goroutine moves
// due entries from a min-heap onto the ready channel where workers block
// in Dequeue. Pending and in-flight idempotency keys are tracked so a
// duplicate Enqueue never creates a second dispatchable entry.
type DelayQueue struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	ready chan *entry
	wake  chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	pending  dueHeap
	byKey    map[string]*entry
	inflight map[string]*entry
	dead     []port.DeadLetter
}

// New creates a running delay queue. Close releases its timer goroutine.
func New(cfg Config, logger *slog.Logger) *DelayQueue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	q := &DelayQueue{
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		ready:    make(chan *entry),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		byKey:    make(map[string]*entry),
		inflight: make(map[string]*entry),
	}
	go q.run()
	return q
}

// Enqueue schedules payload for delivery after delay under idemKey. When
// an entry with the same key is still pending or in flight, the existing
// entry's ticket is returned instead of creating a duplicate.
func (q *DelayQueue) Enqueue(ctx context.Context, payload port.JobPayload, delay time.Duration, idemKey string) (string, error) {
	select {
	case <-q.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byKey[idemKey]; ok {
		return existing.ticket, nil
	}

	e := &entry{
		ticket:  uuid.NewString(),
		idemKey: idemKey,
		payload: payload,
		dueAt:   q.now().Add(delay),
	}
	heap.Push(&q.pending, e)
	q.byKey[idemKey] = e
	q.kick()
	return e.ticket, nil
}

// Dequeue blocks until an entry is due, ctx is done or the queue closes.
func (q *DelayQueue) Dequeue(ctx context.Context) (*port.Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrClosed
	case e := <-q.ready:
		return &port.Delivery{Ticket: e.ticket, Attempt: e.attempt, Payload: e.payload}, nil
	}
}

// Ack completes a delivery and drops its idempotency key.
func (q *DelayQueue) Ack(ticket string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.inflight[ticket]; ok {
		delete(q.inflight, ticket)
		delete(q.byKey, e.idemKey)
	}
}

// Nack re-offers a failed delivery with exponential backoff, or moves it
// to the dead-letter sink once the attempt budget is spent.
func (q *DelayQueue) Nack(ticket string, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.inflight[ticket]
	if !ok {
		return
	}
	delete(q.inflight, ticket)
	e.attempt++

	if e.attempt >= q.cfg.MaxAttempts {
		delete(q.byKey, e.idemKey)
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		q.dead = append(q.dead, port.DeadLetter{
			Ticket:   e.ticket,
			Payload:  e.payload,
			Attempts: e.attempt,
			LastErr:  msg,
			FailedAt: q.now(),
		})
		q.logger.Error("queue entry dead-lettered",
			slog.String("ticket", e.ticket),
			slog.String("job_id", e.payload.JobID.String()),
			slog.Int("attempts", e.attempt),
			slog.Any("error", cause))
		return
	}

	backoff := q.cfg.BackoffBase << (e.attempt - 1)
	e.dueAt = q.now().Add(backoff)
	heap.Push(&q.pending, e)
	q.kick()
	q.logger.Warn("queue entry retry scheduled",
		slog.String("ticket", e.ticket),
		slog.String("job_id", e.payload.JobID.String()),
		slog.Int("attempt", e.attempt),
		slog.Duration("backoff", backoff),
		slog.Any("error", cause))
}

// DeadLetters returns a snapshot of the dead-letter sink.
func (q *DelayQueue) DeadLetters() []port.DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]port.DeadLetter, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len reports how many entries are pending (not yet handed to a worker).
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Close stops the timer goroutine and unblocks all dequeuers.
func (q *DelayQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// kick nudges the timer loop after the head of the heap may have changed.
func (q *DelayQueue) kick() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run is the timer loop: sleep until the earliest entry is due, then hand
// due entries to workers, blocking while all workers are busy.
func (q *DelayQueue) run() {
	for {
		q.mu.Lock()
		now := q.now()
		var due *entry
		wait := time.Hour
		if q.pending.Len() > 0 {
			head := q.pending[0]
			if d := head.dueAt.Sub(now); d > 0 {
				wait = d
			} else {
				due = heap.Pop(&q.pending).(*entry)
				q.inflight[due.ticket] = due
			}
		}
		q.mu.Unlock()

		if due != nil {
			select {
			case <-q.done:
				return
			case q.ready <- due:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-q.done:
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dueHeap is a min-heap of entries ordered by due time.
type dueHeap []*entry

func (h dueHeap) Len() int           { return len(h) }
func (h dueHeap) Less(i, j int) bool { return h[i].dueAt.Before(h[j].dueAt) }
func (h dueHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }

func (h *dueHeap) Push(x any) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
