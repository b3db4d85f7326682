// Package transport connects the operator daemon to conversations served by
// the gateway: a WebSocket channel for widget chats, a polling channel for
// WhatsApp threads, and the REST client both rely on.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/status"
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// ConnectionError reports that the transport could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// EventKind identifies what a channel event carries.
type EventKind string

const (
	EventWelcome        EventKind = "welcome"
	EventChat           EventKind = "chat"
	EventStatusUpdate   EventKind = "statusUpdate"
	EventActiveSessions EventKind = "activeSessions"
)

// Event is delivered to handlers in arrival order.
type Event struct {
	Kind           EventKind
	ConversationID string

	// EventChat
	Message convo.Message

	// EventStatusUpdate
	MessageID string
	Status    convo.Status

	// EventActiveSessions
	Sessions convo.Page[convo.Conversation]
}

// Handler receives channel events. It runs on the channel's reader goroutine
// and must not block for long.
type Handler func(Event)

// Outbound is one message to send.
type Outbound struct {
	ConversationID string
	Content        string
	MediaRef       string
	// ClientMsgID lets the gateway deduplicate retried writes.
	ClientMsgID string
}

// SendResult is the provider's answer to a send. Success=false with a nil
// error means the provider rejected the message.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

// Channel is a bidirectional link to one conversation.
type Channel interface {
	// Connect establishes the channel. The server assigns a conversation id
	// when the channel was created without one.
	Connect(ctx context.Context) error
	// Send performs the provider round-trip. It never touches a view.
	Send(ctx context.Context, out Outbound) (SendResult, error)
	// OnEvent registers a handler. Handlers are called in registration order.
	OnEvent(h Handler)
	ConversationID() string
	State() status.State
	// Close stops event delivery. In-flight sends keep their own context.
	Close() error
}

// dispatcher fans events out to registered handlers until closed.
type dispatcher struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

func (d *dispatcher) add(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

func (d *dispatcher) dispatch(evt Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	handlers := d.handlers
	d.mu.RUnlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
