package queue

import "context"

// Client dispatches phase events to a queue backend. Delivery is
// fire-and-forget and at-least-once: senders never learn whether a consumer
// saw the message, and consumers must tolerate duplicates.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
