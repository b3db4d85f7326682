package api

import (
	"github.com/matheus3301/convsync/internal/convo"
	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
)

func messageToProto(m convo.Message) convsyncv1.Message {
	return convsyncv1.Message{
		ID:             m.ID,
		LocalID:        m.LocalID,
		Provisional:    m.Provisional,
		ConversationID: m.ConversationID,
		Direction:      string(m.Direction),
		Sender:         m.Sender,
		Content:        m.Content,
		MediaRef:       m.MediaRef,
		SentAtUnixMs:   m.SentAt,
		Status:         m.Status.String(),
	}
}

func messagesToProto(msgs []convo.Message) []convsyncv1.Message {
	out := make([]convsyncv1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToProto(m))
	}
	return out
}

func sessionToProto(c convo.Conversation) convsyncv1.Session {
	return convsyncv1.Session{
		ID:                  c.ID,
		Channel:             string(c.Channel),
		CreatedAtUnixMs:     c.CreatedAt,
		LastMessageAtUnixMs: c.LastMessageAt,
		LastMessagePreview:  c.LastMessagePreview,
		FullName:            c.FullName,
		EmailAddress:        c.EmailAddress,
		MobileNumber:        c.MobileNumber,
	}
}

func pageInfo[T any](p convo.Page[T]) convsyncv1.PageInfo {
	return convsyncv1.PageInfo{
		Total:   int32(p.Total),
		Limit:   int32(p.Limit),
		Offset:  int32(p.Offset),
		HasMore: p.HasMore,
	}
}
