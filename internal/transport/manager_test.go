package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/status"
)

// stubChannel records calls; connectErr makes Connect fail.
type stubChannel struct {
	id         string
	connectErr error
	handlers   []Handler
	state      status.State
	closed     bool
}

func (s *stubChannel) Connect(context.Context) error {
	if s.connectErr != nil {
		s.state = status.Error
		return s.connectErr
	}
	if s.id == "" {
		s.id = assignedID
	}
	s.state = status.Connected
	for _, h := range s.handlers {
		h(Event{Kind: EventWelcome, ConversationID: s.id})
	}
	return nil
}

func (s *stubChannel) Send(context.Context, Outbound) (SendResult, error) {
	return SendResult{Success: true}, nil
}
func (s *stubChannel) OnEvent(h Handler) { s.handlers = append(s.handlers, h) }
func (s *stubChannel) ConversationID() string { return s.id }
func (s *stubChannel) State() status.State { return s.state }
func (s *stubChannel) Close() error { s.closed = true; s.state = status.Closed; return nil }

func TestManagerOpenReusesChannel(t *testing.T) {
	created := 0
	factory := func(id string, _ convo.Channel) Channel {
		created++
		return &stubChannel{id: id}
	}
	h, events := collect()
	m := NewManager(factory, h, nil)
	ctx := context.Background()

	first, err := m.Open(ctx, "c1", convo.ChannelChat)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	second, _ := m.Open(ctx, "c1", convo.ChannelChat)
	if first != second || created != 1 {
		t.Errorf("Open() twice created %d channels", created)
	}
	if e := waitEvent(t, events, EventWelcome); e.ConversationID != "c1" {
		t.Errorf("welcome = %+v", e)
	}
	if got := m.States()["c1"]; got != status.Connected {
		t.Errorf("States()[c1] = %s", got)
	}
}

func TestManagerOpenNewConversation(t *testing.T) {
	m := NewManager(func(id string, _ convo.Channel) Channel { return &stubChannel{id: id} }, nil, nil)

	ch, err := m.Open(context.Background(), "", convo.ChannelChat)
	if err != nil {
		t.Fatal(err)
	}
	if ch.ConversationID() != assignedID {
		t.Errorf("ConversationID() = %q", ch.ConversationID())
	}
	if _, ok := m.Get(assignedID); !ok {
		t.Error("channel not registered under assigned id")
	}
}

func TestManagerOpenFailureClosesChannel(t *testing.T) {
	stub := &stubChannel{id: "c1", connectErr: &ConnectionError{Op: "connect", Err: errors.New("refused")}}
	m := NewManager(func(string, convo.Channel) Channel { return stub }, nil, nil)

	if _, err := m.Open(context.Background(), "c1", convo.ChannelChat); err == nil {
		t.Fatal("Open() expected error")
	}
	if !stub.closed {
		t.Error("failed channel not closed")
	}
	if _, ok := m.Get("c1"); ok {
		t.Error("failed channel registered")
	}
}

func TestManagerClose(t *testing.T) {
	stubs := map[string]*stubChannel{}
	m := NewManager(func(id string, _ convo.Channel) Channel {
		s := &stubChannel{id: id}
		stubs[id] = s
		return s
	}, nil, nil)
	ctx := context.Background()
	_, _ = m.Open(ctx, "a", convo.ChannelChat)
	_, _ = m.Open(ctx, "b", convo.ChannelWhatsApp)

	if err := m.Close("a"); err != nil || !stubs["a"].closed {
		t.Errorf("Close(a) = %v, closed = %v", err, stubs["a"].closed)
	}
	if ids := m.IDs(); len(ids) != 1 || ids[0] != "b" {
		t.Errorf("IDs() = %v", ids)
	}
	if err := m.CloseAll(); err != nil || !stubs["b"].closed {
		t.Errorf("CloseAll() = %v", err)
	}
	if len(m.IDs()) != 0 {
		t.Error("channels left after CloseAll")
	}
}
