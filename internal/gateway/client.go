package gateway

import (
	"sync"

	"github.com/google/uuid"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
)

// Role is the side of a chat socket.
type Role string

const (
	RoleAgent   Role = "agent"
	RoleVisitor Role = "visitor"
)

// ParseRole maps the role query parameter. Empty means visitor, since the
// widget does not send one.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case "", RoleVisitor:
		return RoleVisitor, true
	case RoleAgent:
		return RoleAgent, true
	default:
		return "", false
	}
}

// Client is one connected chat socket.
//
// Send is never closed by the server, so concurrent broadcasters cannot panic;
// done signals the socket goroutines to stop.
type Client struct {
	ID   string
	Role Role
	Send chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(role Role, sendQueueSize int) *Client {
	if sendQueueSize < minSendQueueSize {
		sendQueueSize = minSendQueueSize
	}
	return &Client{
		ID:   uuid.NewString(),
		Role: role,
		Send: make(chan v1.Envelope, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client goroutines to stop. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// offer queues env without blocking. It reports false when the queue is full
// or the client is closing.
func (c *Client) offer(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
