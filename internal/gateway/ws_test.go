package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/registry"
	"github.com/matheus3301/convsync/internal/transport"
)

func TestVisitorConnectAllocatesSession(t *testing.T) {
	g := newTestGateway(t)

	_, id := g.connect(t, "role=visitor")

	if _, ok := registry.CreatedAt(id); !ok {
		t.Fatalf("welcome id %q is not a session id", id)
	}
	conv, err := g.db.GetConversation(id)
	if err != nil || conv == nil {
		t.Fatalf("conversation not stored: %v", err)
	}
	if conv.Channel != convo.ChannelChat {
		t.Errorf("channel = %s", conv.Channel)
	}
}

func TestConnectWithSessionIDReusesIt(t *testing.T) {
	g := newTestGateway(t)

	_, id := g.connect(t, "role=agent&conversationId=session_1700000000000")
	if id != "session_1700000000000" {
		t.Errorf("welcome id = %q", id)
	}
	conv, _ := g.db.GetConversation(id)
	if conv == nil || conv.CreatedAt != 1700000000000 {
		t.Errorf("conversation = %+v, want createdAt from id", conv)
	}
}

func TestRejectsNonChatConversation(t *testing.T) {
	g := newTestGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	u := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws/chat?conversationId=5511999990000"
	_, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{Subprotocols: []string{v1.Subprotocol}})
	if err == nil {
		t.Fatal("dial to a WhatsApp conversation should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("response = %v, want 400", resp)
	}
}

func TestAgentChatEchoesThenDelivered(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "role=visitor")
	agent, _ := g.connect(t, "role=agent&conversationId="+id)

	writeEnv(t, agent, v1.TypeChat, v1.ChatPayload{ConversationID: id, ClientMsgID: "c1", Message: "  hello  "})

	for _, conn := range []*websocket.Conn{agent, visitor} {
		echo := decode[v1.ChatPayload](t, readType(t, conn, v1.TypeChat))
		if echo.MessageID == "" || echo.ClientMsgID != "c1" || echo.Message != "hello" {
			t.Errorf("echo = %+v", echo)
		}
		if echo.Direction != string(convo.Outbound) || echo.Status != "sent" {
			t.Errorf("echo direction/status = %s/%s", echo.Direction, echo.Status)
		}
		st := decode[v1.StatusUpdatePayload](t, readType(t, conn, v1.TypeStatusUpdate))
		if st.MessageID != echo.MessageID || st.Status != "delivered" {
			t.Errorf("status update = %+v", st)
		}
	}
}

func TestAgentChatWithoutVisitorStaysSent(t *testing.T) {
	g := newTestGateway(t)
	agent, id := g.connect(t, "role=agent&conversationId=session_1700000000000")

	writeEnv(t, agent, v1.TypeChat, v1.ChatPayload{ClientMsgID: "c1", Message: "anyone?"})
	echo := decode[v1.ChatPayload](t, readType(t, agent, v1.TypeChat))

	stored, err := g.db.GetMessage(echo.MessageID)
	if err != nil || stored == nil {
		t.Fatalf("message not stored: %v", err)
	}
	if stored.Status != convo.StatusSent || stored.ConversationID != id {
		t.Errorf("stored = %+v", stored)
	}
}

func TestVisitorChatIsInboundAndIdempotent(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "")

	writeEnv(t, visitor, v1.TypeChat, v1.ChatPayload{ClientMsgID: "v1", Message: "hi"})
	first := decode[v1.ChatPayload](t, readType(t, visitor, v1.TypeChat))
	if first.Direction != string(convo.Inbound) || first.Status != "" || first.Sender != "visitor" {
		t.Errorf("inbound echo = %+v", first)
	}

	retry := writeEnv(t, visitor, v1.TypeChat, v1.ChatPayload{ClientMsgID: "v1", Message: "hi"})
	again := readType(t, visitor, v1.TypeChat)
	if again.Ref != retry.ID {
		t.Errorf("retry answer ref = %q, want %q", again.Ref, retry.ID)
	}
	if p := decode[v1.ChatPayload](t, again); p.MessageID != first.MessageID {
		t.Errorf("retry id = %s, want %s", p.MessageID, first.MessageID)
	}

	_, total, err := g.db.ListMessages(context.Background(), id, 10, 0)
	if err != nil || total != 1 {
		t.Errorf("stored %d messages, want 1 (err %v)", total, err)
	}
}

func TestVisitorReadReceipt(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "role=visitor")
	agent, _ := g.connect(t, "role=agent&conversationId="+id)

	writeEnv(t, agent, v1.TypeChat, v1.ChatPayload{ClientMsgID: "c1", Message: "hello"})
	echo := decode[v1.ChatPayload](t, readType(t, visitor, v1.TypeChat))
	readType(t, agent, v1.TypeChat)
	readType(t, agent, v1.TypeStatusUpdate)

	writeEnv(t, visitor, v1.TypeStatusUpdate, v1.StatusUpdatePayload{MessageID: echo.MessageID, Status: "read"})

	st := decode[v1.StatusUpdatePayload](t, readType(t, agent, v1.TypeStatusUpdate))
	if st.MessageID != echo.MessageID || st.Status != "read" {
		t.Errorf("agent saw %+v, want read", st)
	}
}

func TestReceiptRules(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "role=visitor")
	agent, _ := g.connect(t, "role=agent&conversationId="+id)

	req := writeEnv(t, agent, v1.TypeStatusUpdate, v1.StatusUpdatePayload{MessageID: "x", Status: "read"})
	errEnv := readType(t, agent, v1.TypeError)
	if p := decode[v1.ErrorPayload](t, errEnv); p.Code != v1.CodeForbidden || errEnv.Ref != req.ID {
		t.Errorf("agent receipt error = %+v ref %q", p, errEnv.Ref)
	}

	writeEnv(t, visitor, v1.TypeStatusUpdate, v1.StatusUpdatePayload{MessageID: "missing", Status: "read"})
	if p := decode[v1.ErrorPayload](t, readType(t, visitor, v1.TypeError)); p.Code != v1.CodeBadRequest {
		t.Errorf("unknown message error code = %s", p.Code)
	}

	writeEnv(t, visitor, v1.TypeStatusUpdate, v1.StatusUpdatePayload{MessageID: "x", Status: "failed"})
	if p := decode[v1.ErrorPayload](t, readType(t, visitor, v1.TypeError)); p.Code != v1.CodeBadRequest {
		t.Errorf("failed receipt error code = %s", p.Code)
	}
}

func TestChatValidation(t *testing.T) {
	g := newTestGateway(t)
	agent, _ := g.connect(t, "role=agent&conversationId=session_1700000000000")

	tests := []struct {
		name    string
		payload v1.ChatPayload
		code    string
	}{
		{"empty", v1.ChatPayload{Message: "   "}, v1.CodeBadRequest},
		{"too long", v1.ChatPayload{Message: strings.Repeat("x", 51)}, v1.CodeTooLarge},
		{"other session", v1.ChatPayload{ConversationID: "session_1800000000000", Message: "hi"}, v1.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := writeEnv(t, agent, v1.TypeChat, tt.payload)
			env := readType(t, agent, v1.TypeError)
			if p := decode[v1.ErrorPayload](t, env); p.Code != tt.code || env.Ref != req.ID {
				t.Errorf("error = %+v ref %q, want %s", p, env.Ref, tt.code)
			}
		})
	}
}

func TestUserInfo(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "role=visitor")

	writeEnv(t, visitor, v1.TypeUserInfo, v1.UserInfoPayload{FullName: " Ana ", EmailAddress: "ana@example.com"})
	ack := decode[v1.UserInfoAckPayload](t, readType(t, visitor, v1.TypeUserInfoAck))
	if !ack.Updated {
		t.Error("userInfoAck.updated = false")
	}
	conv, _ := g.db.GetConversation(id)
	if conv.FullName != "Ana" || conv.EmailAddress != "ana@example.com" {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestActiveSessions(t *testing.T) {
	g := newTestGateway(t)
	visitor, _ := g.connect(t, "role=visitor")
	agent, _ := g.connect(t, "role=agent&conversationId=session_1700000000000")

	writeEnv(t, agent, v1.TypeActiveSessions, v1.ActiveSessionsRequest{Page: 1, PageSize: 1})
	resp := decode[v1.ActiveSessionsResponse](t, readType(t, agent, v1.TypeActiveSessions))
	if resp.Error != "" || len(resp.Sessions) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Pagination.Total != 2 || !resp.Pagination.HasMore {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	writeEnv(t, visitor, v1.TypeActiveSessions, nil)
	if p := decode[v1.ErrorPayload](t, readType(t, visitor, v1.TypeError)); p.Code != v1.CodeForbidden {
		t.Errorf("visitor listing error = %+v", p)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	g := newTestGateway(t)
	conn, _ := g.connect(t, "role=agent&conversationId=session_1700000000000")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"v":1,"type":"bogus","id":"e1"}`)); err != nil {
		t.Fatal(err)
	}
	env := readType(t, conn, v1.TypeError)
	if p := decode[v1.ErrorPayload](t, env); p.Code != v1.CodeBadRequest || env.Ref != "e1" {
		t.Errorf("error = %+v ref %q", p, env.Ref)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{not json`)); err != nil {
		t.Fatal(err)
	}
	if p := decode[v1.ErrorPayload](t, readType(t, conn, v1.TypeError)); p.Code != v1.CodeBadRequest {
		t.Errorf("bad JSON error = %+v", p)
	}
}

func TestSocketChannelAgainstGateway(t *testing.T) {
	g := newTestGateway(t)
	visitor, id := g.connect(t, "role=visitor")

	ch := transport.NewSocketChannel(id, transport.SocketOptions{BaseURL: g.srv.URL})
	events := make(chan transport.Event, 16)
	ch.OnEvent(func(e transport.Event) { events <- e })
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := ch.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ch.Close() }()

	res, err := ch.Send(ctx, transport.Outbound{Content: "from the daemon", ClientMsgID: "d1"})
	if err != nil || !res.Success || res.ProviderMessageID == "" {
		t.Fatalf("Send() = %+v, %v", res, err)
	}
	if echo := decode[v1.ChatPayload](t, readType(t, visitor, v1.TypeChat)); echo.MessageID != res.ProviderMessageID {
		t.Errorf("visitor saw %s, want %s", echo.MessageID, res.ProviderMessageID)
	}

	writeEnv(t, visitor, v1.TypeChat, v1.ChatPayload{ClientMsgID: "v1", Message: "reply"})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Kind == transport.EventChat && e.Message.Content == "reply" {
				if e.Message.Direction != convo.Inbound || e.Message.Provisional {
					t.Errorf("inbound message = %+v", e.Message)
				}
				return
			}
		case <-deadline:
			t.Fatal("visitor message never reached the channel")
		}
	}
}
