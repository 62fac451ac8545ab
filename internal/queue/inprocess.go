package queue

import (
	"context"

	"dealroom-backend/internal/shared/telemetry"
)

// Processor consumes a decoded phase event.
type Processor interface {
	ProcessEvent(ctx context.Context, msg Message) error
}

// InProcessClient runs the processor in a goroutine instead of crossing a
// broker. It backs single-binary deployments and local development where no
// SQS queue is configured; the at-least-once/fire-and-forget contract is the
// same, only the transport differs.
type InProcessClient struct {
	processor Processor
}

// NewInProcessClient constructs an in-process dispatcher.
func NewInProcessClient(processor Processor) *InProcessClient {
	return &InProcessClient{processor: processor}
}

// SetProcessor installs the processor after construction. Bootstrap needs
// this because the dispatcher is built before the services it delivers to.
func (c *InProcessClient) SetProcessor(processor Processor) {
	c.processor = processor
}

// Send delivers the message asynchronously. Processing failures are logged,
// not returned: the caller's contract is fire-and-forget.
func (c *InProcessClient) Send(ctx context.Context, msg Message) error {
	processor := c.processor
	if processor == nil {
		telemetry.Error("queue.inprocess.no_processor", map[string]any{
			"event":  msg.Event,
			"job_id": msg.JobID,
		})
		return nil
	}
	go func() {
		if err := processor.ProcessEvent(context.Background(), msg); err != nil {
			telemetry.Error("queue.inprocess.process_failed", map[string]any{
				"event":      msg.Event,
				"job_id":     msg.JobID,
				"request_id": msg.RequestID,
				"error":      err.Error(),
			})
		}
	}()
	return nil
}

var _ Client = (*InProcessClient)(nil)
