package store

import "github.com/matheus3301/convsync/internal/convo"

// Conversation is a stored conversation row.
type Conversation struct {
	ID                 string
	Channel            convo.Channel
	CreatedAt          int64
	LastMessageAt      int64
	LastMessagePreview string
	FullName           string
	EmailAddress       string
	MobileNumber       string
}

// UserInfo holds a widget visitor's contact details.
type UserInfo struct {
	FullName     string
	EmailAddress string
	MobileNumber string
}

// Message is a stored message row. Seq is the insertion order.
type Message struct {
	Seq            int64
	MsgID          string
	ConversationID string
	ClientMsgID    string
	Direction      convo.Direction
	Sender         string
	Body           string
	MediaRef       string
	Status         convo.Status
	Timestamp      int64
}

// StatusEvent is a logged status advance.
type StatusEvent struct {
	Seq            int64
	ConversationID string
	MsgID          string
	Status         convo.Status
}

// SendAttempt audits one provider send.
type SendAttempt struct {
	ID             int64
	ConversationID string
	ClientMsgID    string
	Body           string
	Status         string // sending, sent, failed
	ProviderMsgID  string
	ErrorMessage   string
	CreatedAt      int64
}

// Convo converts the row into a domain message.
func (m *Message) Convo() convo.Message {
	return convo.Message{
		ID:             m.MsgID,
		LocalID:        m.ClientMsgID,
		ConversationID: m.ConversationID,
		Direction:      m.Direction,
		Sender:         m.Sender,
		Content:        m.Body,
		MediaRef:       m.MediaRef,
		SentAt:         m.Timestamp,
		Status:         m.Status,
	}
}

// Convo converts the row into a domain conversation summary.
func (c *Conversation) Convo() convo.Conversation {
	return convo.Conversation{
		ID:                 c.ID,
		Channel:            c.Channel,
		CreatedAt:          c.CreatedAt,
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		FullName:           c.FullName,
		EmailAddress:       c.EmailAddress,
		MobileNumber:       c.MobileNumber,
	}
}
