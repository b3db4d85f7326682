package api

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/outbox"
	"github.com/matheus3301/convsync/internal/registry"
	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/status"
	intsync "github.com/matheus3301/convsync/internal/sync"
	"github.com/matheus3301/convsync/internal/transport"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const watchBuffer = 256

// ConversationService implements the ConversationService gRPC service.
type ConversationService struct {
	convsyncv1.UnimplementedConversationServiceServer

	registry  *registry.Registry
	channels  *transport.Manager
	engine    *intsync.Engine
	refetcher *intsync.Refetcher
	sender    *outbox.Sender
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewConversationService creates the conversation service.
func NewConversationService(
	reg *registry.Registry,
	channels *transport.Manager,
	engine *intsync.Engine,
	refetcher *intsync.Refetcher,
	sender *outbox.Sender,
	b *bus.Bus,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		registry:  reg,
		channels:  channels,
		engine:    engine,
		refetcher: refetcher,
		sender:    sender,
		bus:       b,
		logger:    logger,
	}
}

func (s *ConversationService) ListSessions(ctx context.Context, req *convsyncv1.ListSessionsRequest) (*convsyncv1.ListSessionsResponse, error) {
	res := s.registry.List(ctx, int(req.Page), int(req.PageSize))
	resp := &convsyncv1.ListSessionsResponse{
		Sessions: make([]convsyncv1.Session, 0, len(res.Page.Items)),
		PageInfo: pageInfo(res.Page),
	}
	if res.Failed {
		resp.Error = res.Err.Error()
		return resp, nil
	}
	for _, c := range res.Page.Items {
		resp.Sessions = append(resp.Sessions, sessionToProto(c))
	}
	return resp, nil
}

func (s *ConversationService) OpenConversation(ctx context.Context, req *convsyncv1.OpenConversationRequest) (*convsyncv1.OpenConversationResponse, error) {
	id, channel, err := openTarget(req.ConversationID, req.Channel)
	if err != nil {
		return nil, err
	}

	ch, err := s.channels.Open(ctx, id, channel)
	if err != nil {
		var connErr *transport.ConnectionError
		if errors.As(err, &connErr) {
			return nil, grpcstatus.Errorf(codes.Unavailable, "open conversation: %v", err)
		}
		return nil, grpcstatus.Errorf(codes.Internal, "open conversation: %v", err)
	}
	id = ch.ConversationID()
	s.engine.Open(id)
	metrics.OpenViews.Set(float64(len(s.engine.Conversations())))

	resp := &convsyncv1.OpenConversationResponse{
		ConversationID: id,
		Channel:        string(channel),
		State:          string(ch.State()),
	}
	if _, err := s.refetcher.RefreshNow(ctx, id); err != nil {
		s.logger.Warn("initial history load failed", zap.String("conversation_id", id), zap.Error(err))
		resp.RefreshError = err.Error()
	}
	snap, _ := s.engine.Snapshot(id)
	resp.Messages = messagesToProto(snap.Messages)
	return resp, nil
}

// openTarget resolves the conversation id and channel of an open request.
// WhatsApp ids are reduced to the bare number the gateway keys them by.
func openTarget(conversationID, channelName string) (string, convo.Channel, error) {
	id := strings.TrimSpace(conversationID)
	channel := registry.ChannelOf(id)
	if channelName != "" {
		c, ok := convo.ParseChannel(channelName)
		if !ok {
			return "", "", grpcstatus.Errorf(codes.InvalidArgument, "unknown channel %q", channelName)
		}
		channel = c
	}
	if channel == convo.ChannelWhatsApp {
		id = registry.NormalizePhone(id)
	}
	if id == "" && channel != convo.ChannelChat {
		return "", "", grpcstatus.Errorf(codes.InvalidArgument, "conversation id is required for %s", channel)
	}
	return id, channel, nil
}

func (s *ConversationService) CloseConversation(_ context.Context, req *convsyncv1.CloseConversationRequest) (*convsyncv1.CloseConversationResponse, error) {
	if req.ConversationID == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "conversation id is required")
	}
	if err := s.channels.Close(req.ConversationID); err != nil {
		s.logger.Warn("close channel", zap.String("conversation_id", req.ConversationID), zap.Error(err))
	}
	s.refetcher.Forget(req.ConversationID)
	s.engine.Forget(req.ConversationID)
	metrics.OpenViews.Set(float64(len(s.engine.Conversations())))
	return &convsyncv1.CloseConversationResponse{}, nil
}

func (s *ConversationService) GetMessages(_ context.Context, req *convsyncv1.GetMessagesRequest) (*convsyncv1.GetMessagesResponse, error) {
	snap, ok := s.engine.Snapshot(req.ConversationID)
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "conversation %q is not open", req.ConversationID)
	}
	return &convsyncv1.GetMessagesResponse{
		ConversationID: snap.ConversationID,
		Version:        snap.Version,
		Messages:       messagesToProto(snap.Messages),
	}, nil
}

func (s *ConversationService) SendText(ctx context.Context, req *convsyncv1.SendTextRequest) (*convsyncv1.SendTextResponse, error) {
	m, err := s.sender.Send(ctx, req.ConversationID, req.Content, req.MediaRef)
	if err != nil {
		return nil, sendError(err)
	}
	return &convsyncv1.SendTextResponse{Message: messageToProto(m)}, nil
}

func (s *ConversationService) RetryMessage(ctx context.Context, req *convsyncv1.RetryMessageRequest) (*convsyncv1.RetryMessageResponse, error) {
	m, err := s.sender.Retry(ctx, req.ConversationID, req.MessageID)
	if err != nil {
		return nil, sendError(err)
	}
	return &convsyncv1.RetryMessageResponse{Message: messageToProto(m)}, nil
}

func (s *ConversationService) LoadOlder(ctx context.Context, req *convsyncv1.LoadOlderRequest) (*convsyncv1.LoadOlderResponse, error) {
	if err := s.requireOpen(req.ConversationID); err != nil {
		return nil, err
	}
	res, hasMore, err := s.refetcher.LoadOlder(ctx, req.ConversationID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "load older: %v", err)
	}
	return &convsyncv1.LoadOlderResponse{Added: int32(res.Added), HasMore: hasMore}, nil
}

func (s *ConversationService) RefreshConversation(ctx context.Context, req *convsyncv1.RefreshConversationRequest) (*convsyncv1.RefreshConversationResponse, error) {
	if err := s.requireOpen(req.ConversationID); err != nil {
		return nil, err
	}
	res, err := s.refetcher.RefreshNow(ctx, req.ConversationID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "refresh: %v", err)
	}
	return &convsyncv1.RefreshConversationResponse{Added: int32(res.Added), Refined: int32(res.Refined)}, nil
}

func (s *ConversationService) WatchConversation(req *convsyncv1.WatchConversationRequest, stream grpc.ServerStreamingServer[convsyncv1.ConversationEvent]) error {
	ch, unsub := s.bus.Subscribe("", watchBuffer)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			out, ok := toConversationEvent(evt)
			if !ok {
				continue
			}
			if req.ConversationID != "" && out.ConversationID != req.ConversationID {
				continue
			}
			if err := stream.Send(&out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *ConversationService) requireOpen(conversationID string) error {
	if _, ok := s.channels.Get(conversationID); !ok {
		return grpcstatus.Errorf(codes.FailedPrecondition, "conversation %q is not open", conversationID)
	}
	return nil
}

func sendError(err error) error {
	switch {
	case errors.Is(err, outbox.ErrEmptyMessage):
		return grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, outbox.ErrNotOpen), errors.Is(err, outbox.ErrNotRetryable):
		return grpcstatus.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, outbox.ErrNotFound):
		return grpcstatus.Errorf(codes.NotFound, "%v", err)
	default:
		return grpcstatus.Errorf(codes.Internal, "send: %v", err)
	}
}

func toConversationEvent(evt bus.Event) (convsyncv1.ConversationEvent, bool) {
	out := convsyncv1.ConversationEvent{
		EventID:          uuid.NewString(),
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
	}
	switch p := evt.Payload.(type) {
	case intsync.ViewChange:
		out.Kind = convsyncv1.EventViewChanged
		out.ConversationID = p.ConversationID
		out.Reason = p.Reason
		out.Version = p.Version
		out.Added = int32(p.Result.Added)
		out.Refined = int32(p.Result.Refined)
		out.AutoScroll = p.Result.AutoScroll
	case status.StatusChange:
		out.Kind = convsyncv1.EventStateChanged
		out.ConversationID = p.Name
		out.State = string(p.To)
	case *outbox.SendFailure:
		out.Kind = convsyncv1.EventSendFailed
		out.ConversationID = p.ConversationID
		out.LocalID = p.LocalID
		out.Error = p.Reason
	default:
		return out, false
	}
	return out, true
}
