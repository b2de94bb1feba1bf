package queue

import (
	"context"
	"fmt"
)

// MemoryClient is an in-process queue backed by a buffered channel. It serves
// local development and tests where no SQS queue exists.
type MemoryClient struct {
	messages chan Message
}

// NewMemoryClient constructs an in-memory queue with the given buffer size.
func NewMemoryClient(buffer int) *MemoryClient {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryClient{messages: make(chan Message, buffer)}
}

// Send enqueues the message, failing fast when the buffer is full rather than
// blocking the submitting request.
func (m *MemoryClient) Send(ctx context.Context, msg Message) error {
	select {
	case m.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("memory queue full (%d messages)", cap(m.messages))
	}
}

// Receive blocks until a message arrives or the context ends.
func (m *MemoryClient) Receive(ctx context.Context) (Message, error) {
	select {
	case msg := <-m.messages:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Len reports the number of buffered messages.
func (m *MemoryClient) Len() int { return len(m.messages) }

var _ Client = (*MemoryClient)(nil)
