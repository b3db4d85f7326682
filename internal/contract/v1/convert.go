package v1

import (
	"github.com/matheus3301/convsync/internal/convo"
)

// ToMessage converts a chat payload into a domain message. A payload without a
// message id is provisional.
func ToMessage(p ChatPayload) (convo.Message, error) {
	st, err := convo.ParseStatus(p.Status)
	if err != nil {
		return convo.Message{}, err
	}
	dir := convo.Direction(p.Direction)
	if dir != convo.Outbound {
		dir = convo.Inbound
	}
	return convo.Message{
		ID:             p.MessageID,
		LocalID:        p.ClientMsgID,
		Provisional:    p.MessageID == "",
		ConversationID: p.ConversationID,
		Direction:      dir,
		Sender:         p.Sender,
		Content:        p.Message,
		MediaRef:       p.MediaRef,
		SentAt:         p.Timestamp,
		Status:         st,
	}, nil
}

// FromMessage converts a domain message into a chat payload.
func FromMessage(m convo.Message) ChatPayload {
	p := ChatPayload{
		ConversationID: m.ConversationID,
		ClientMsgID:    m.LocalID,
		Message:        m.Content,
		Sender:         m.Sender,
		Direction:      string(m.Direction),
		Timestamp:      m.SentAt,
		MediaRef:       m.MediaRef,
		Status:         m.Status.String(),
	}
	if !m.Provisional {
		p.MessageID = m.ID
	}
	return p
}

// FromPage converts page metadata.
func FromPage[T any](p convo.Page[T]) Pagination {
	return Pagination{Total: p.Total, Limit: p.Limit, Offset: p.Offset, HasMore: p.HasMore}
}

// ToSession converts a conversation summary.
func ToSession(c convo.Conversation) Session {
	return Session{
		ConversationID:     c.ID,
		Channel:            string(c.Channel),
		CreatedAt:          c.CreatedAt,
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		FullName:           c.FullName,
		EmailAddress:       c.EmailAddress,
		MobileNumber:       c.MobileNumber,
	}
}

// FromSession converts a wire session into a conversation summary.
func FromSession(s Session) convo.Conversation {
	ch, ok := convo.ParseChannel(s.Channel)
	if !ok {
		ch = convo.ChannelChat
	}
	return convo.Conversation{
		ID:                 s.ConversationID,
		Channel:            ch,
		CreatedAt:          s.CreatedAt,
		LastMessageAt:      s.LastMessageAt,
		LastMessagePreview: s.LastMessagePreview,
		FullName:           s.FullName,
		EmailAddress:       s.EmailAddress,
		MobileNumber:       s.MobileNumber,
	}
}
