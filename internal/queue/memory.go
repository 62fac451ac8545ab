package queue

import (
	"context"
	"sync"
)

// MemoryClient records sent messages. Tests use it to assert on dispatched
// events; an optional Handler makes delivery synchronous so a test can walk
// the pipeline deterministically.
type MemoryClient struct {
	mu      sync.Mutex
	sent    []Message
	Handler func(ctx context.Context, msg Message) error
	Err     error // returned from Send when set, to simulate dispatch failure
}

// NewMemoryClient constructs an in-memory queue client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{}
}

// Send records the message and invokes the handler when configured.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	if m.Err != nil {
		err := m.Err
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, msg)
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, msg)
	}
	return nil
}

// Sent returns a copy of all recorded messages.
func (m *MemoryClient) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

var _ Client = (*MemoryClient)(nil)
