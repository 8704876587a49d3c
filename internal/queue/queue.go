package queue

import "context"

const (
	// DispatchQueue is the durable work queue for notification dispatch.
	DispatchQueue = "notifications.dispatch"
	// DispatchDLQ receives messages rejected as unprocessable.
	DispatchDLQ = "dlq.notifications.dispatch"

	dlxExchangeName = "notify.dlx"
	dlxRoutingKey   = "dispatch"

	// queueMaxPriority is the RabbitMQ x-max-priority value.
	queueMaxPriority int32 = 3
)

// Publisher publishes dispatch messages to the work queue.
type Publisher interface {
	Publish(ctx context.Context, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch message.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch messages from the work queue.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}
