package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
)

const assignedID = "session_1700000000000"

// fakeGateway accepts chat sockets and answers like the real gateway: echo
// for chat, ack for userInfo, a one-item page for activeSessions. Chat
// messages are stored by client message id; "hold" is stored without an echo.
type fakeGateway struct {
	t    *testing.T
	srv  *httptest.Server
	held chan string

	mu     sync.Mutex
	conns  []*websocket.Conn
	ids    []string
	stored map[string]v1.ChatPayload
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{t: t, held: make(chan string, 8), stored: make(map[string]v1.ChatPayload)}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat", g.serveWS)
	mux.HandleFunc("GET /api/messages/sent", g.serveSent)
	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{v1.Subprotocol}})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	id := r.URL.Query().Get("conversationId")
	if id == "" {
		id = assignedID
	}
	g.mu.Lock()
	g.conns = append(g.conns, conn)
	g.ids = append(g.ids, id)
	g.mu.Unlock()

	ctx := r.Context()
	welcome, _ := v1.NewEnvelope(v1.TypeWelcome, v1.WelcomePayload{ConversationID: id})
	if err := wsjson.Write(ctx, conn, welcome); err != nil {
		return
	}

	for {
		var env v1.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		var out v1.Envelope
		switch env.Type {
		case v1.TypeChat:
			var p v1.ChatPayload
			_ = env.Decode(&p)
			if p.Message == "reject" {
				out, _ = v1.Reply(env, v1.TypeError, v1.ErrorPayload{Code: v1.CodeSendFailed, Message: "provider rejected"})
				break
			}
			p.MessageID = "srv-" + p.ClientMsgID
			p.Status = "sent"
			g.mu.Lock()
			g.stored[p.ClientMsgID] = p
			g.mu.Unlock()
			if p.Message == "hold" {
				g.held <- p.ClientMsgID
				continue
			}
			out, _ = v1.Reply(env, v1.TypeChat, p)
		case v1.TypeUserInfo:
			out, _ = v1.Reply(env, v1.TypeUserInfoAck, v1.UserInfoAckPayload{Updated: true})
		case v1.TypeActiveSessions:
			out, _ = v1.Reply(env, v1.TypeActiveSessions, v1.ActiveSessionsResponse{
				Sessions:   []v1.Session{{ConversationID: id, Channel: "chat"}},
				Pagination: v1.Pagination{Total: 1, Limit: 20, HasMore: false},
			})
		default:
			continue
		}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			return
		}
	}
}

func (g *fakeGateway) serveSent(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	p, ok := g.stored[r.URL.Query().Get("clientMsgId")]
	g.mu.Unlock()
	if !ok || p.ConversationID != r.URL.Query().Get("conversationId") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not stored"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// push writes env to every open socket.
func (g *fakeGateway) push(env v1.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = wsjson.Write(ctx, c, env)
		cancel()
	}
}

// dropAll kills every open socket.
func (g *fakeGateway) dropAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		_ = c.CloseNow()
	}
	g.conns = nil
}

func (g *fakeGateway) requestedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ids...)
}

// collect returns a handler feeding a buffered channel.
func collect() (Handler, <-chan Event) {
	ch := make(chan Event, 64)
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}, ch
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", kind)
			return Event{}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
