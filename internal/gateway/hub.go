package gateway

import (
	"sync"

	"go.uber.org/zap"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
)

// Conversation is the set of sockets attached to one chat session.
// Broadcast never blocks: a member with a full queue misses the envelope.
type Conversation struct {
	ID string

	mu      sync.RWMutex
	members map[string]*Client
}

func newConversation(id string) *Conversation {
	return &Conversation{ID: id, members: make(map[string]*Client)}
}

// Broadcast fans env out to every member.
func (c *Conversation) Broadcast(env v1.Envelope) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		_ = m.offer(env)
	}
}

// HasRole reports whether a member with the given role is attached.
func (c *Conversation) HasRole(role Role) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.members {
		if m.Role == role {
			return true
		}
	}
	return false
}

// Len returns the number of attached sockets.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Hub owns the in-memory conversations that currently have sockets attached.
// Persistence lives in the store; a conversation without members is dropped.
type Hub struct {
	logger *zap.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
}

// NewHub constructs an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, conversations: make(map[string]*Conversation)}
}

// Join attaches client to a conversation, creating it on first use.
func (h *Hub) Join(conversationID string, client *Client) *Conversation {
	h.mu.Lock()
	conv, ok := h.conversations[conversationID]
	if !ok {
		conv = newConversation(conversationID)
		h.conversations[conversationID] = conv
	}
	conv.mu.Lock()
	conv.members[client.ID] = client
	conv.mu.Unlock()
	h.mu.Unlock()

	h.logger.Debug("conversation member joined",
		zap.String("conversation_id", conversationID),
		zap.String("client_id", client.ID),
		zap.String("role", string(client.Role)))
	return conv
}

// Leave detaches a client and signals it to stop. Membership is removed
// before the client closes so a broadcaster never holds a closing member.
func (h *Hub) Leave(conversationID string, client *Client) {
	h.mu.Lock()
	if conv, ok := h.conversations[conversationID]; ok {
		conv.mu.Lock()
		delete(conv.members, client.ID)
		empty := len(conv.members) == 0
		conv.mu.Unlock()
		if empty {
			delete(h.conversations, conversationID)
		}
	}
	h.mu.Unlock()

	client.Close()
	h.logger.Debug("conversation member left",
		zap.String("conversation_id", conversationID),
		zap.String("client_id", client.ID))
}

// Get returns the conversation if any socket is attached to it.
func (h *Hub) Get(conversationID string) (*Conversation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conv, ok := h.conversations[conversationID]
	return conv, ok
}
