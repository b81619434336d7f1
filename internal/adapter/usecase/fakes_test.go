package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dripmail/internal/core/domain"
	"dripmail/internal/core/port"
)

// memStore is an in-memory JobStore honoring the same compare-and-set
// semantics as the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]domain.Campaign
	jobs      map[uuid.UUID]*domain.DeliveryJob

	failCreateJobs bool
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[uuid.UUID]domain.Campaign),
		jobs:      make(map[uuid.UUID]*domain.DeliveryJob),
	}
}

func (s *memStore) CreateCampaign(_ context.Context, c *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns[c.ID] = *c
	return nil
}

func (s *memStore) CreateJobs(_ context.Context, jobs []domain.DeliveryJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateJobs {
		return errors.New("store unavailable")
	}
	for i := range jobs {
		j := jobs[i]
		s.jobs[j.ID] = &j
	}
	return nil
}

func (s *memStore) GetJob(_ context.Context, id uuid.UUID) (*domain.DeliveryJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) SetJobTicket(_ context.Context, id uuid.UUID, ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	j.QueueTicket = &ticket
	return nil
}

func (s *memStore) MarkSent(_ context.Context, id uuid.UUID, expectedTicket string, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status == domain.JobStatusSent {
		return false, nil
	}
	if j.QueueTicket != nil && *j.QueueTicket != expectedTicket {
		return false, nil
	}
	j.Status = domain.JobStatusSent
	j.SentAt = &sentAt
	j.ErrorMessage = nil
	j.QueueTicket = &expectedTicket
	return true, nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status == domain.JobStatusSent {
		return false, nil
	}
	j.Status = domain.JobStatusFailed
	j.ErrorMessage = &errMsg
	return true, nil
}

func (s *memStore) MarkDelayed(_ context.Context, id uuid.UUID, scheduledAt time.Time, ticket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Terminal() {
		return false, nil
	}
	j.Status = domain.JobStatusDelayed
	j.ScheduledAt = scheduledAt
	j.QueueTicket = &ticket
	return true, nil
}

func (s *memStore) ListJobs(_ context.Context, filter port.JobFilter) (*port.JobPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := &port.JobPage{}
	for _, j := range s.jobs {
		finished := j.Terminal()
		if filter.Class == port.JobClassFinished != finished {
			continue
		}
		if filter.SenderID != "" && j.SenderID != filter.SenderID {
			continue
		}
		page.Total++
		page.Jobs = append(page.Jobs, *j)
	}
	return page, nil
}

func (s *memStore) job(id uuid.UUID) domain.DeliveryJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// memCounters is an in-memory CounterStore with real expiry.
type memCounters struct {
	mu   sync.Mutex
	data map[string]counterRow
	now  func() time.Time
}

type counterRow struct {
	count   int64
	expires time.Time
}

func newMemCounters() *memCounters {
	return &memCounters{data: make(map[string]counterRow), now: time.Now}
}

func (c *memCounters) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.data[key]
	if !row.expires.After(c.now()) {
		row.count = 0
	}
	row.count++
	row.expires = c.now().Add(ttl)
	c.data[key] = row
	return row.count, nil
}

func (c *memCounters) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.data[key]
	if !ok || !row.expires.After(c.now()) {
		return 0, nil
	}
	return row.count, nil
}

func (c *memCounters) DeleteExpired(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k, row := range c.data {
		if !row.expires.After(c.now()) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

// recordingQueue captures Enqueue calls and can fail from a given call
// index onward, for exercising partial-failure recovery.
type recordingQueue struct {
	mu       sync.Mutex
	calls    []enqueueCall
	failFrom int // fail calls with index >= failFrom; -1 never fails
}

type enqueueCall struct {
	payload port.JobPayload
	delay   time.Duration
	idemKey string
	ticket  string
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{failFrom: -1}
}

func (q *recordingQueue) Enqueue(_ context.Context, payload port.JobPayload, delay time.Duration, idemKey string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failFrom >= 0 && len(q.calls) >= q.failFrom {
		return "", errors.New("queue unavailable")
	}
	ticket := fmt.Sprintf("ticket-%d", len(q.calls))
	q.calls = append(q.calls, enqueueCall{payload: payload, delay: delay, idemKey: idemKey, ticket: ticket})
	return ticket, nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (*port.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *recordingQueue) Ack(string)         {}
func (q *recordingQueue) Nack(string, error) {}

// fakeSender records sends. Recipients in failFor always fail; those in
// failOnce fail their first attempt only, mimicking a transient outage.
type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	failFor  map[string]error
	failOnce map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failFor:  make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (s *fakeSender) Send(_ context.Context, to, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[to]; ok {
		return "", err
	}
	if err, ok := s.failOnce[to]; ok {
		delete(s.failOnce, to)
		return "", err
	}
	s.sent = append(s.sent, to)
	return "msg-" + to, nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// stubGate is a SendGate with a scripted Allowed sequence.
type stubGate struct {
	mu         sync.Mutex
	allow      []bool // consumed front to back; empty means always allow
	recorded   []string
	nextWindow time.Time
}

func (g *stubGate) Allowed(context.Context, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.allow) == 0 {
		return true, nil
	}
	v := g.allow[0]
	g.allow = g.allow[1:]
	return v, nil
}

func (g *stubGate) RecordSend(_ context.Context, senderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorded = append(g.recorded, senderID)
	return nil
}

func (g *stubGate) NextWindowStart(now time.Time) time.Time {
	if !g.nextWindow.IsZero() {
		return g.nextWindow
	}
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}
