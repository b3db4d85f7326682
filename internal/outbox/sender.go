// Package outbox runs the operator send pipeline: an optimistic entry is
// appended to the view at once, and the provider round-trip resolves it in
// the background.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	intsync "github.com/matheus3301/convsync/internal/sync"
	"github.com/matheus3301/convsync/internal/transport"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNotOpen      = errors.New("conversation is not open")
	ErrNotRetryable = errors.New("only failed outbound messages can be retried")
	ErrNotFound     = errors.New("message not found")
)

// SendFailure is published on the bus when a send ends failed. The entry
// stays in the view with status failed.
type SendFailure struct {
	ConversationID string
	LocalID        string
	Reason         string
	Err            error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send %s in %s failed: %s", e.LocalID, e.ConversationID, e.Reason)
}

func (e *SendFailure) Unwrap() error { return e.Err }

// Ack is published on the bus when the provider accepted a send.
type Ack struct {
	ConversationID string
	LocalID        string
	CanonicalID    string
}

// Channels resolves the open channel of a conversation.
type Channels interface {
	Get(conversationID string) (transport.Channel, bool)
}

// Sender runs operator sends.
type Sender struct {
	engine   *intsync.Engine
	channels Channels
	bus      *bus.Bus
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

// NewSender creates a sender. timeout bounds each provider round-trip.
func NewSender(engine *intsync.Engine, channels Channels, b *bus.Bus, timeout time.Duration, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Sender{
		engine:   engine,
		channels: channels,
		bus:      b,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Send appends a pending entry and starts the provider round-trip. The
// returned entry carries the local id the result will be resolved against.
// Content is trimmed the way the gateway stores it. The round-trip outlives ctx.
func (s *Sender) Send(ctx context.Context, conversationID, content, mediaRef string) (convo.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && mediaRef == "" {
		return convo.Message{}, ErrEmptyMessage
	}
	ch, ok := s.channels.Get(conversationID)
	if !ok {
		return convo.Message{}, fmt.Errorf("%w: %s", ErrNotOpen, conversationID)
	}

	msg := s.engine.AppendOptimistic(conversationID, content, mediaRef, s.now())
	s.logger.Debug("send queued",
		zap.String("conversation_id", conversationID),
		zap.String("local_id", msg.LocalID))

	s.wg.Add(1)
	go s.deliver(context.WithoutCancel(ctx), ch, msg)
	return msg, nil
}

// Retry sends the content of a failed entry again as a new entry. The failed
// entry is left as it is.
func (s *Sender) Retry(ctx context.Context, conversationID, messageID string) (convo.Message, error) {
	m, ok := s.engine.Message(conversationID, messageID)
	if !ok {
		return convo.Message{}, fmt.Errorf("%w: %s in %s", ErrNotFound, messageID, conversationID)
	}
	if m.Direction != convo.Outbound || m.Status != convo.StatusFailed {
		return convo.Message{}, ErrNotRetryable
	}
	return s.Send(ctx, conversationID, m.Content, m.MediaRef)
}

// Wait blocks until every in-flight send has resolved.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) deliver(ctx context.Context, ch transport.Channel, msg convo.Message) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := ch.Send(ctx, transport.Outbound{
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		MediaRef:       msg.MediaRef,
		ClientMsgID:    msg.LocalID,
	})

	if err == nil && res.Success {
		s.engine.ResolveSend(msg.ConversationID, msg.LocalID, intsync.SendOutcome{
			Success:     true,
			CanonicalID: res.ProviderMessageID,
		})
		metrics.SendsTotal.WithLabelValues("success").Inc()
		s.logger.Info("message sent",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("local_id", msg.LocalID),
			zap.String("message_id", res.ProviderMessageID))
		s.emit(bus.KindSendAck, Ack{
			ConversationID: msg.ConversationID,
			LocalID:        msg.LocalID,
			CanonicalID:    res.ProviderMessageID,
		})
		return
	}

	reason := res.Error
	if reason == "" && err != nil {
		reason = err.Error()
	}
	if reason == "" {
		reason = "provider rejected the message"
	}
	s.engine.ResolveSend(msg.ConversationID, msg.LocalID, intsync.SendOutcome{Err: reason})
	metrics.SendsTotal.WithLabelValues("failure").Inc()
	s.logger.Warn("message send failed",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("local_id", msg.LocalID),
		zap.String("reason", reason))
	s.emit(bus.KindSendFailed, &SendFailure{
		ConversationID: msg.ConversationID,
		LocalID:        msg.LocalID,
		Reason:         reason,
		Err:            err,
	})
}

func (s *Sender) emit(kind string, payload any) {
	if s.bus != nil {
		s.bus.Emit(kind, payload)
	}
}
