// Package queue provides the durable at-least-once transport between job
// submission and the consumer.
//
// Every backend follows the same claim model:
//   - Receive claims up to N messages and hides them for the visibility timeout
//   - Ack removes a claimed message for good
//   - Retry hands a claimed message back with exponential backoff, or moves it
//     to the dead-letter set once MaxAttempts deliveries have been made
//   - RequeueExpired redelivers claims whose visibility timeout elapsed, which
//     is how work abandoned by a crashed consumer is picked up again
package queue

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrUnknownReceipt is returned by Ack and Retry when the claim no longer
// exists, usually because its visibility timeout expired and it was requeued.
var ErrUnknownReceipt = errors.New("queue: unknown or expired receipt")

// Message is the payload published for every accepted submission.
// Generation identifies the submission that published it.
type Message struct {
	MessageID  string  `json:"message_id"`
	Generation string  `json:"generation"`
	Text       string  `json:"text"`
	Agent      string  `json:"agent"`
	Source     *string `json:"source,omitempty"`
}

// Delivery is one claimed message.
type Delivery struct {
	Message Message
	// Receipt identifies the claim for Ack and Retry.
	Receipt string
	// Attempts counts deliveries of this message, including this one.
	Attempts   int
	ReceivedAt time.Time
}

// Stats is a point-in-time view of the backend.
type Stats struct {
	Pending  int64 `json:"pending"`
	InFlight int64 `json:"in_flight"`
	Dead     int64 `json:"dead"`
}

// Queue is implemented by every backend.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	Retry(ctx context.Context, d Delivery, reason string) error
	RequeueExpired(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
}

// Options are shared by all backends.
type Options struct {
	VisibilityTimeout time.Duration
	// MaxAttempts is the number of deliveries after which a retried message
	// is dead-lettered (0 = unlimited).
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

func (o Options) withDefaults() Options {
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 10 * time.Minute
	}
	if o.BaseRetryDelay < 0 {
		o.BaseRetryDelay = 0
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = time.Hour
	}
	return o
}

// exhausted reports whether a message delivered attempts times may not be retried.
func (o Options) exhausted(attempts int) bool {
	return o.MaxAttempts > 0 && attempts >= o.MaxAttempts
}

// backoff returns base * attempt², capped at max.
func (o Options) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := o.BaseRetryDelay * time.Duration(attempt*attempt)
	if d > o.MaxRetryDelay {
		return o.MaxRetryDelay
	}
	return d
}

const maxErrorBytes = 500

// truncateError caps msg at maxErrorBytes without splitting a UTF-8
// sequence; last_error is a TEXT column and Postgres rejects invalid UTF-8.
func truncateError(msg string) string {
	if len(msg) > maxErrorBytes {
		cut := maxErrorBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return strings.ToValidUTF8(msg, "")
}
