package transport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/status"
)

type pollServer struct {
	mu       sync.Mutex
	cursors  []string
	healthy  atomic.Bool
	polls    atomic.Int32
	sendSeen v1.SendRequest
}

func (s *pollServer) mux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !s.healthy.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, v1.Health{Status: "ok", Provider: "loopback"})
	})
	mux.HandleFunc("GET /api/whatsapp/updates", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conversationId") != "5511" {
			t.Errorf("updates query = %s", r.URL.RawQuery)
		}
		s.mu.Lock()
		s.cursors = append(s.cursors, r.URL.Query().Get("cursor"))
		s.mu.Unlock()

		if s.polls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, v1.UpdatesResponse{
				Messages:      []v1.ChatPayload{{MessageID: "wa-1", Message: "oi", Direction: "inbound", Timestamp: 1000}},
				StatusUpdates: []v1.StatusUpdatePayload{{MessageID: "wa-0", Status: "read"}},
				Cursor:        7,
			})
			return
		}
		writeJSON(w, http.StatusOK, v1.UpdatesResponse{Cursor: 7})
	})
	mux.HandleFunc("POST /api/whatsapp/send", func(w http.ResponseWriter, r *http.Request) {
		var req v1.SendRequest
		_ = decodeBody(r, &req)
		s.mu.Lock()
		s.sendSeen = req
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, v1.SendResponse{Success: true, ProviderMessageID: "wa-9"})
	})
	return mux
}

func TestPollChannelDispatchesUpdates(t *testing.T) {
	s := &pollServer{}
	s.healthy.Store(true)
	c := newClient(t, s.mux(t))

	ch := NewPollChannel(c, "5511", PollOptions{Interval: 20 * time.Millisecond})
	h, events := collect()
	ch.OnEvent(h)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = ch.Close() }()

	if w := waitEvent(t, events, EventWelcome); w.ConversationID != "5511" {
		t.Errorf("welcome = %+v", w)
	}
	msg := waitEvent(t, events, EventChat)
	if msg.Message.ID != "wa-1" || msg.Message.ConversationID != "5511" || msg.Message.Direction != convo.Inbound {
		t.Errorf("chat event = %+v", msg.Message)
	}
	st := waitEvent(t, events, EventStatusUpdate)
	if st.MessageID != "wa-0" || st.Status != convo.StatusRead {
		t.Errorf("status event = %+v", st)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.polls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.mu.Lock()
	cursors := append([]string(nil), s.cursors...)
	s.mu.Unlock()
	if len(cursors) < 2 || cursors[0] != "" || cursors[1] != "7" {
		t.Errorf("cursors = %v, want head then 7", cursors)
	}
}

func TestPollChannelSend(t *testing.T) {
	s := &pollServer{}
	s.healthy.Store(true)
	c := newClient(t, s.mux(t))
	ch := NewPollChannel(c, "5511", PollOptions{Interval: time.Hour})

	res, err := ch.Send(context.Background(), Outbound{Content: "hello"})
	if err != nil || !res.Success || res.ProviderMessageID != "wa-9" {
		t.Fatalf("Send() = %+v, %v", res, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendSeen.To != "5511" || s.sendSeen.Content != "hello" {
		t.Errorf("request = %+v", s.sendSeen)
	}
}

func TestPollChannelConnectFailure(t *testing.T) {
	s := &pollServer{}
	c := newClient(t, s.mux(t))
	ch := NewPollChannel(c, "5511", PollOptions{})
	defer func() { _ = ch.Close() }()

	if err := ch.Connect(context.Background()); err == nil {
		t.Fatal("Connect() expected error while gateway is unhealthy")
	}
	if ch.State() != status.Error {
		t.Errorf("State() = %s, want ERROR", ch.State())
	}

	s.healthy.Store(true)
	if err := ch.Connect(context.Background()); err != nil {
		t.Errorf("Connect() retry error = %v", err)
	}
	if ch.State() != status.Connected {
		t.Errorf("State() = %s, want CONNECTED", ch.State())
	}
}
