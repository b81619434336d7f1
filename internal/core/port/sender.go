package port

import "context"

// MessageSender is the outbound transport that actually delivers a
// message. Any non-error return is a confirmed send; any error is
// retryable per the delay queue's policy.
type MessageSender interface {
	// Send delivers one message and returns the transport's message id.
	Send(ctx context.Context, to, subject, body string) (string, error)
}
