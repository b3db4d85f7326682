package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/convo"
	intsync "github.com/matheus3301/convsync/internal/sync"
	"github.com/matheus3301/convsync/internal/transport"
)

const resyncTimeout = 10 * time.Second

// EventRouter feeds transport channel events into the engine.
type EventRouter struct {
	engine    *intsync.Engine
	refetcher *intsync.Refetcher
	logger    *zap.Logger
}

// NewEventRouter creates a router.
func NewEventRouter(engine *intsync.Engine, refetcher *intsync.Refetcher, logger *zap.Logger) *EventRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventRouter{engine: engine, refetcher: refetcher, logger: logger}
}

// Handle is the transport.Handler of every channel the daemon opens.
func (r *EventRouter) Handle(evt transport.Event) {
	switch evt.Kind {
	case transport.EventChat:
		r.engine.Merge(evt.ConversationID, intsync.SourceTransport, []convo.Message{evt.Message})
	case transport.EventStatusUpdate:
		if !r.engine.ApplyStatus(evt.MessageID, evt.Status) {
			r.logger.Debug("status update not applied",
				zap.String("message_id", evt.MessageID),
				zap.String("status", evt.Status.String()))
		}
	case transport.EventWelcome:
		// A welcome on an existing view means the socket reconnected and may
		// have missed messages.
		if _, ok := r.engine.Snapshot(evt.ConversationID); ok {
			go r.resync(evt.ConversationID)
		}
	}
}

func (r *EventRouter) resync(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	res, err := r.refetcher.RefreshNow(ctx, conversationID)
	if err != nil {
		r.logger.Warn("resync after reconnect failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	r.logger.Info("resynced after reconnect",
		zap.String("conversation_id", conversationID),
		zap.Int("added", res.Added),
		zap.Int("refined", res.Refined))
}
