package broker

import (
	"context"
	"time"
)

// Message is one received queue message. handle is driver specific and is
// what Complete/Abandon act on.
type Message struct {
	ID     string
	Body   []byte
	handle interface{}
}

// Receiver is a peek-lock session scoped to one drain cycle.
type Receiver interface {
	// Receive returns up to maxMessages, waiting at most maxWait for the first
	// one. An empty slice with a nil error means the queue is drained.
	Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*Message, error)
	// Complete acknowledges msg so the queue never redelivers it.
	Complete(ctx context.Context, msg *Message) error
	// Abandon releases msg for redelivery.
	Abandon(ctx context.Context, msg *Message) error
	Close(ctx context.Context) error
}

type Sender interface {
	Send(ctx context.Context, body []byte) error
	Close(ctx context.Context) error
}

// Client opens receivers and senders against one configured queue.
type Client interface {
	NewReceiver(ctx context.Context) (Receiver, error)
	NewSender(ctx context.Context) (Sender, error)
	Close(ctx context.Context) error
}
