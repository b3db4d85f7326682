package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/matheus3301/convsync/internal/provider"
)

// ParsedMessage is a normalized message ready for ingestion.
type ParsedMessage struct {
	Chat        types.JID
	MsgID       string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	Timestamp   int64
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	return ParseHistoryMessage(evt.Message, evt.Info)
}

// ParseHistoryMessage normalizes a message and its metadata.
func ParseHistoryMessage(msg *waE2E.Message, info types.MessageInfo) *ParsedMessage {
	return &ParsedMessage{
		Chat:        info.Chat.ToNonAD(),
		MsgID:       info.ID,
		SenderName:  info.PushName,
		Body:        extractTextBody(msg),
		MessageType: detectMessageType(msg),
		FromMe:      info.IsFromMe,
		Timestamp:   info.Timestamp.UnixMilli(),
	}
}

// ToInbound converts the message for the conversation with phone. Media
// without a caption gets a placeholder body.
func (p *ParsedMessage) ToInbound(phone string) provider.Inbound {
	body := p.Body
	if body == "" && p.MessageType != "text" {
		body = "[" + p.MessageType + "]"
	}
	return provider.Inbound{
		Phone:      phone,
		MessageID:  p.MsgID,
		SenderName: p.SenderName,
		Body:       body,
		Kind:       p.MessageType,
		FromMe:     p.FromMe,
		Timestamp:  p.Timestamp,
	}
}

// isDirectChat reports whether jid is a one-to-one chat. Groups, broadcasts
// and newsletters have no phone-number conversation.
func isDirectChat(jid types.JID) bool {
	switch jid.Server {
	case types.DefaultUserServer, types.HiddenUserServer:
		return jid.User != ""
	default:
		return false
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
