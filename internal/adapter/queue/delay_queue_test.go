package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dripmail/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T, cfg Config) *DelayQueue {
	t.Helper()
	q := New(cfg, testLogger())
	t.Cleanup(q.Close)
	return q
}

func payload(recipient string) port.JobPayload {
	return port.JobPayload{
		JobID:      uuid.New(),
		CampaignID: uuid.New(),
		SenderID:   "sender-1",
		Recipient:  recipient,
		Subject:    "subject",
		Body:       "body",
	}
}

func TestDequeueOrderedByDueTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := newTestQueue(t, Config{})

	// Enqueued out of order, must come out by due time.
	_, err := q.Enqueue(ctx, payload("second@example.com"), 40*time.Millisecond, "k2")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, payload("first@example.com"), 10*time.Millisecond, "k1")
	require.NoError(t, err)

	d1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "first@example.com", d1.Payload.Recipient)

	d2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "second@example.com", d2.Payload.Recipient)
}

func TestDequeueWaitsForDueTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := newTestQueue(t, Config{})

	delay := 60 * time.Millisecond
	before := time.Now()
	_, err := q.Enqueue(ctx, payload("a@example.com"), delay, "k1")
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(before), delay,
		"entry handed out before its due time")
}

func TestEnqueueDeduplicatesOnIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Config{})

	t1, err := q.Enqueue(ctx, payload("a@example.com"), time.Hour, "same-key")
	require.NoError(t, err)
	t2, err := q.Enqueue(ctx, payload("a@example.com"), time.Hour, "same-key")
	require.NoError(t, err)
	require.Equal(t, t1, t2, "duplicate enqueue must return the existing ticket")
	require.Equal(t, 1, q.Len())
}

func TestKeyDedupeHoldsWhileInFlight(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := newTestQueue(t, Config{})

	t1, err := q.Enqueue(ctx, payload("a@example.com"), 0, "key")
	require.NoError(t, err)
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)

	// Still in flight: the key is occupied.
	t2, err := q.Enqueue(ctx, payload("a@example.com"), time.Hour, "key")
	require.NoError(t, err)
	require.Equal(t, t1, t2)

	// Acked: the key is free again.
	q.Ack(d.Ticket)
	t3, err := q.Enqueue(ctx, payload("a@example.com"), time.Hour, "key")
	require.NoError(t, err)
	require.NotEqual(t, t1, t3)
}

func TestNackRetriesWithBackoffThenDeadLetters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q := newTestQueue(t, Config{MaxAttempts: 3, BackoffBase: 10 * time.Millisecond})

	p := payload("a@example.com")
	ticket, err := q.Enqueue(ctx, p, 0, "key")
	require.NoError(t, err)

	for attempt := 0; attempt < 3; attempt++ {
		d, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, ticket, d.Ticket, "retries keep the original ticket")
		require.Equal(t, attempt, d.Attempt)
		q.Nack(d.Ticket, errors.New("smtp timeout"))
	}

	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	require.Equal(t, ticket, dead[0].Ticket)
	require.Equal(t, 3, dead[0].Attempts)
	require.Equal(t, "smtp timeout", dead[0].LastErr)
	require.Equal(t, p.JobID, dead[0].Payload.JobID)
	require.Zero(t, q.Len())

	// The key is released for a future enqueue.
	t2, err := q.Enqueue(ctx, p, time.Hour, "key")
	require.NoError(t, err)
	require.NotEqual(t, ticket, t2)
}

func TestNackBackoffDelaysRedelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	base := 50 * time.Millisecond
	q := newTestQueue(t, Config{MaxAttempts: 3, BackoffBase: base})

	_, err := q.Enqueue(ctx, payload("a@example.com"), 0, "key")
	require.NoError(t, err)
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)

	before := time.Now()
	q.Nack(d.Ticket, errors.New("boom"))
	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(before), base)
}

func TestDequeueHonorsContext(t *testing.T) {
	q := newTestQueue(t, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseUnblocksDequeue(t *testing.T) {
	q := New(Config{}, testLogger())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not return after Close")
	}

	_, err := q.Enqueue(context.Background(), payload("a@example.com"), 0, "k")
	require.ErrorIs(t, err, ErrClosed)
}
