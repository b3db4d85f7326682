package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/status"
)

// Factory builds an unconnected channel for a conversation.
type Factory func(conversationID string, channel convo.Channel) Channel

// Manager owns one channel per open conversation and funnels their events
// into a single handler.
type Manager struct {
	factory Factory
	handler Handler
	logger  *zap.Logger

	mu       sync.Mutex
	channels map[string]Channel
}

// NewManager creates a manager.
func NewManager(factory Factory, handler Handler, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory:  factory,
		handler:  handler,
		logger:   logger,
		channels: make(map[string]Channel),
	}
}

// Open returns the channel for conversationID, connecting a new one when
// none is open. An empty id opens a new widget conversation; the returned
// channel carries the id the gateway assigned.
func (m *Manager) Open(ctx context.Context, conversationID string, channel convo.Channel) (Channel, error) {
	if conversationID != "" {
		if ch, ok := m.Get(conversationID); ok {
			return ch, nil
		}
	}

	ch := m.factory(conversationID, channel)
	if ch == nil {
		return nil, fmt.Errorf("no transport for channel %q", channel)
	}
	ch.OnEvent(m.handler)
	if err := ch.Connect(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}

	id := ch.ConversationID()
	m.mu.Lock()
	if existing, ok := m.channels[id]; ok {
		m.mu.Unlock()
		_ = ch.Close()
		return existing, nil
	}
	m.channels[id] = ch
	m.mu.Unlock()

	m.logger.Info("channel opened", zap.String("conversation_id", id), zap.String("channel", string(channel)))
	return ch, nil
}

// Get returns the open channel for conversationID.
func (m *Manager) Get(conversationID string) (Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[conversationID]
	return ch, ok
}

// Close closes and forgets the channel for conversationID.
func (m *Manager) Close(conversationID string) error {
	m.mu.Lock()
	ch, ok := m.channels[conversationID]
	delete(m.channels, conversationID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.logger.Info("channel closed", zap.String("conversation_id", conversationID))
	return ch.Close()
}

// CloseAll closes every channel.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	channels := m.channels
	m.channels = make(map[string]Channel)
	m.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		errs = append(errs, ch.Close())
	}
	return errors.Join(errs...)
}

// States returns the connection state of every open channel.
func (m *Manager) States() map[string]status.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]status.State, len(m.channels))
	for id, ch := range m.channels {
		out[id] = ch.State()
	}
	return out
}

// IDs returns the open conversation ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
