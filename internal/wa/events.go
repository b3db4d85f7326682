package wa

import (
	"context"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/status"
)

// EventHandler processes whatsmeow events, drives the provider state machine,
// and publishes provider events on the bus. It does not touch the message
// store; the gateway's ingester subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	adapter *Adapter
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. adapter may be nil, in which
// case LID chats are not resolved to phone numbers.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		bus:     b,
		machine: machine,
		adapter: adapter,
		logger:  logger,
	}
}

// Handle is the whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		switch h.machine.Current() {
		case status.Idle, status.AuthRequired, status.Reconnecting, status.Error:
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Connected)
		h.bus.Emit(bus.KindProviderState, status.Connected)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Emit(bus.KindProviderState, status.Reconnecting)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Emit(bus.KindProviderState, status.AuthRequired)
	}
}

// phoneOf returns the conversation id of a direct chat.
func (h *EventHandler) phoneOf(jid types.JID) string {
	jid = jid.ToNonAD()
	if h.adapter != nil {
		jid = h.adapter.ResolveLID(context.Background(), jid)
	}
	return jid.User
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	if !isDirectChat(evt.Info.Chat) {
		return
	}
	parsed := ParseLiveMessage(evt)
	h.bus.Emit(bus.KindProviderMessage, parsed.ToInbound(h.phoneOf(evt.Info.Chat)))
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	if evt.IsFromMe || !isDirectChat(evt.Chat) {
		return
	}
	var st convo.Status
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		st = convo.StatusDelivered
	case types.ReceiptTypeRead:
		st = convo.StatusRead
	default:
		return
	}
	h.bus.Emit(bus.KindProviderReceipt, provider.Receipt{
		Phone:      h.phoneOf(evt.Chat),
		MessageIDs: append([]string(nil), evt.MessageIDs...),
		Status:     st,
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var msgs []provider.Inbound
	for _, conv := range data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil || !isDirectChat(chat) {
			continue
		}
		phone := h.phoneOf(chat)
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			info := wmsg.GetMessage()
			parsed := &ParsedMessage{
				Chat:        chat.ToNonAD(),
				MsgID:       wmsg.GetKey().GetID(),
				SenderName:  wmsg.GetPushName(),
				Body:        extractTextBody(info),
				MessageType: detectMessageType(info),
				FromMe:      wmsg.GetKey().GetFromMe(),
				Timestamp:   int64(wmsg.GetMessageTimestamp()) * 1000,
			}
			msgs = append(msgs, parsed.ToInbound(phone))
		}
	}

	if len(msgs) > 0 {
		h.bus.Emit(bus.KindProviderHistory, msgs)
	}
}
