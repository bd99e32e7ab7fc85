package queue

import "context"

const (
	// WorkQueue is the dedicated delivery queue. Notifications run on their
	// own queue so a provider outage cannot starve unrelated background work.
	WorkQueue = "lead.notifications"
	// DLQ receives messages rejected as unprocessable.
	DLQ = "dlq.lead.notifications"
)

// Publisher publishes dispatch messages to the work queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from the work queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}
