// Package convo holds the conversation domain types shared by the gateway,
// the reconciliation engine and the operator API.
package convo

import "strings"

// Channel identifies how a conversation reaches its counterparty.
type Channel string

const (
	ChannelChat     Channel = "chat"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel normalizes a channel name. Unknown names report false.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelChat:
		return ChannelChat, true
	case ChannelWhatsApp:
		return ChannelWhatsApp, true
	default:
		return "", false
	}
}

// Direction is relative to the operator: outbound messages are written by the
// operator (or the business number), inbound ones by the counterparty.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Message is one unit of conversation content as seen by the operator.
type Message struct {
	// ID is the canonical id once the store or provider confirmed the message,
	// and the local id while Provisional is true.
	ID string
	// LocalID is the id generated at optimistic-send time. It survives the
	// adoption of a canonical id so send results can still find the entry.
	LocalID        string
	Provisional    bool
	ConversationID string
	Direction      Direction
	Sender         string
	Content        string
	MediaRef       string
	SentAt         int64 // unix ms
	Status         Status
}

// HasCanonicalID reports whether the message carries an id assigned by the
// store or the provider.
func (m *Message) HasCanonicalID() bool {
	return m.ID != "" && !m.Provisional
}

// Conversation is a conversation summary as listed by the session registry.
type Conversation struct {
	ID                 string
	Channel            Channel
	CreatedAt          int64
	LastMessageAt      int64
	LastMessagePreview string
	FullName           string
	EmailAddress       string
	MobileNumber       string
}
