package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/outbox"
	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/status"
	intsync "github.com/matheus3301/convsync/internal/sync"
)

func TestSendErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{outbox.ErrEmptyMessage, codes.InvalidArgument},
		{fmt.Errorf("%w: session_1", outbox.ErrNotOpen), codes.FailedPrecondition},
		{outbox.ErrNotRetryable, codes.FailedPrecondition},
		{fmt.Errorf("%w: m-1 in session_1", outbox.ErrNotFound), codes.NotFound},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(sendError(tt.err)); got != tt.want {
			t.Errorf("sendError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestToConversationEvent(t *testing.T) {
	at := time.UnixMilli(1700000000000)

	evt, ok := toConversationEvent(bus.Event{Timestamp: at, Payload: intsync.ViewChange{
		ConversationID: "session_1",
		Reason:         "transport",
		Version:        3,
		Result:         intsync.MergeResult{Added: 1, AutoScroll: true},
	}})
	if !ok || evt.Kind != convsyncv1.EventViewChanged || evt.Version != 3 || evt.Added != 1 || !evt.AutoScroll {
		t.Errorf("view change = %+v", evt)
	}
	if evt.OccurredAtUnixMs != at.UnixMilli() || evt.EventID == "" {
		t.Errorf("envelope fields = %+v", evt)
	}

	evt, ok = toConversationEvent(bus.Event{Payload: status.StatusChange{Name: "session_1", From: status.Connected, To: status.Reconnecting}})
	if !ok || evt.Kind != convsyncv1.EventStateChanged || evt.State != "RECONNECTING" || evt.ConversationID != "session_1" {
		t.Errorf("state change = %+v", evt)
	}

	evt, ok = toConversationEvent(bus.Event{Payload: &outbox.SendFailure{ConversationID: "session_1", LocalID: "local-1", Reason: "timeout"}})
	if !ok || evt.Kind != convsyncv1.EventSendFailed || evt.LocalID != "local-1" || evt.Error != "timeout" {
		t.Errorf("send failure = %+v", evt)
	}

	if _, ok := toConversationEvent(bus.Event{Payload: outbox.Ack{}}); ok {
		t.Error("acks are not streamed")
	}
}

func TestMessageToProto(t *testing.T) {
	m := messageToProto(convo.Message{
		ID:             "m-1",
		LocalID:        "local-1",
		ConversationID: "session_1",
		Direction:      convo.Outbound,
		Content:        "hi",
		SentAt:         42,
		Status:         convo.StatusDelivered,
	})
	if m.Status != "delivered" || m.Direction != "outbound" || m.SentAtUnixMs != 42 || m.Provisional {
		t.Errorf("proto = %+v", m)
	}
	if in := messageToProto(convo.Message{Direction: convo.Inbound}); in.Status != "" {
		t.Errorf("inbound status = %q, want empty", in.Status)
	}
}

func TestOpenTarget(t *testing.T) {
	tests := []struct {
		name        string
		id, channel string
		wantID      string
		wantChannel convo.Channel
		wantCode    codes.Code
	}{
		{"formatted phone", "+55 11 99999-0000", "", "5511999990000", convo.ChannelWhatsApp, codes.OK},
		{"explicit whatsapp", " 55 11 99999 0000 ", "whatsapp", "5511999990000", convo.ChannelWhatsApp, codes.OK},
		{"chat session", " session_1700000000000 ", "", "session_1700000000000", convo.ChannelChat, codes.OK},
		{"new chat", "", "chat", "", convo.ChannelChat, codes.OK},
		{"phone without digits", "+-", "", "", "", codes.InvalidArgument},
		{"unknown channel", "5511", "sms", "", "", codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, channel, err := openTarget(tt.id, tt.channel)
			if got := grpcstatus.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (%v)", got, tt.wantCode, err)
			}
			if id != tt.wantID || channel != tt.wantChannel {
				t.Errorf("openTarget(%q, %q) = %q, %s; want %q, %s", tt.id, tt.channel, id, channel, tt.wantID, tt.wantChannel)
			}
		})
	}
}
