package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/registry"
	"github.com/matheus3301/convsync/internal/store"
)

var errBackpressure = errors.New("send queue full")

// WSOptions tunes the chat socket endpoint. Zero values take the defaults.
type WSOptions struct {
	AllowedOrigins   []string
	MaxMessageChars  int
	SendQueueSize    int
	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
	RateEvents       int
	RateWindow       time.Duration
}

func (o *WSOptions) defaults() {
	if o.MaxMessageChars <= 0 {
		o.MaxMessageChars = defaultMaxMessageChars
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = defaultSendQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = heartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = heartbeatTimeout
	}
}

// WSGateway serves /ws/chat. Each socket is attached to one chat session:
// visitors post inbound messages and read receipts, agents post outbound
// messages and list active sessions. Every stored change reaches the
// session's sockets through the bus, see Start.
type WSGateway struct {
	logger   *zap.Logger
	db       *store.DB
	rec      *Recorder
	registry *registry.Registry
	bus      *bus.Bus
	hub      *Hub
	opts     WSOptions

	originPatterns []string
	now            func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSGateway constructs the chat socket endpoint.
func NewWSGateway(db *store.DB, rec *Recorder, reg *registry.Registry, b *bus.Bus, hub *Hub, opts WSOptions, logger *zap.Logger) *WSGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.defaults()
	return &WSGateway{
		logger:         logger,
		db:             db,
		rec:            rec,
		registry:       reg,
		bus:            b,
		hub:            hub,
		opts:           opts,
		originPatterns: originPatterns(opts.AllowedOrigins),
		now:            time.Now,
	}
}

// Start forwards store changes to the sockets of the affected session until
// Stop is called.
func (g *WSGateway) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	events, unsub := g.bus.Subscribe("store.", 256)
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		defer unsub()
		for {
			select {
			case evt := <-events:
				g.fanout(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the fanout started by Start.
func (g *WSGateway) Stop() {
	if g.cancel != nil {
		g.cancel()
		<-g.done
	}
}

func (g *WSGateway) fanout(evt bus.Event) {
	var (
		convID  string
		typ     string
		payload any
	)
	switch p := evt.Payload.(type) {
	case convo.Message:
		convID, typ, payload = p.ConversationID, v1.TypeChat, v1.FromMessage(p)
	case StatusAdvance:
		convID, typ = p.ConversationID, v1.TypeStatusUpdate
		payload = v1.StatusUpdatePayload{ConversationID: p.ConversationID, MessageID: p.MessageID, Status: p.Status.String()}
	default:
		return
	}

	conv, ok := g.hub.Get(convID)
	if !ok {
		return
	}
	env, err := v1.NewEnvelope(typ, payload)
	if err != nil {
		g.logger.Error("build fanout envelope", zap.Error(err))
		return
	}
	conv.Broadcast(env)
}

// ServeHTTP upgrades the request and runs the socket until either side closes.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, ok := ParseRole(q.Get("role"))
	if !ok {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	convID := strings.TrimSpace(q.Get("conversationId"))
	if convID != "" && registry.ChannelOf(convID) != convo.ChannelChat {
		http.Error(w, "conversationId is not a chat session", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{v1.Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.logger.Warn("ws accept failed", zap.Error(err), zap.String("origin", r.Header.Get("Origin")))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.logger.Info("ws rejected: subprotocol", zap.String("got", sp))
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	convID, err = g.attach(convID)
	if err != nil {
		g.logger.Error("attach session failed", zap.Error(err))
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := NewClient(role, g.opts.SendQueueSize)
	log := g.logger.With(
		zap.String("conversation_id", convID),
		zap.String("client_id", client.ID),
		zap.String("role", string(role)))

	// The welcome is queued before joining so it is always the first frame.
	welcome, err := v1.NewEnvelope(v1.TypeWelcome, v1.WelcomePayload{ConversationID: convID})
	if err != nil {
		log.Error("build welcome", zap.Error(err))
		return
	}
	client.offer(welcome)
	conv := g.hub.Join(convID, client)

	gauge := metrics.SocketConnectionsActive.WithLabelValues(string(role))
	gauge.Inc()
	defer gauge.Dec()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(convID, client)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ctx, conn, client, log, shutdown)
	}()
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, client, log, shutdown)
	}()

	log.Info("chat socket connected")
	g.readLoop(ctx, conn, client, conv, log, shutdown)

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	log.Info("chat socket closed")
}

// attach returns the session id the socket joins, allocating one when the
// client did not name a session.
func (g *WSGateway) attach(id string) (string, error) {
	now := g.now()
	if id != "" {
		createdAt := now.UnixMilli()
		if ts, ok := registry.CreatedAt(id); ok {
			createdAt = ts.UnixMilli()
		}
		return id, g.db.EnsureConversation(id, convo.ChannelChat, createdAt)
	}

	suffix := ""
	for range sessionIDAttempts {
		id = registry.NewSessionID(now, suffix)
		created, err := g.db.CreateConversation(id, convo.ChannelChat, now.UnixMilli())
		if err != nil {
			return "", err
		}
		if created {
			return id, nil
		}
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	return "", fmt.Errorf("allocate session id: %d collisions", sessionIDAttempts)
}

type shutdownFunc func(code websocket.StatusCode, reason string)

func (g *WSGateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client, log *zap.Logger, shutdown shutdownFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case env := <-client.Send:
			wctx, cancel := context.WithTimeout(ctx, g.opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, env)
			cancel()
			if err != nil {
				log.Info("ws write failed", zap.Error(err))
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (g *WSGateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client, log *zap.Logger, shutdown shutdownFunc) {
	t := time.NewTicker(g.opts.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, g.opts.HeartbeatTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			log.Info("ws ping failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= maxPingFailures {
				shutdown(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (g *WSGateway) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, conv *Conversation, log *zap.Logger, shutdown shutdownFunc) {
	rl := NewRateLimiter(g.opts.RateEvents, g.opts.RateWindow)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				log.Info("ws read failed", zap.Error(err))
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}

		now := g.now()
		if !rl.Allow(now) {
			g.replyError(client, v1.Envelope{}, &requestError{code: v1.CodeRateLimited, msg: "too many events"})
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			return
		}
		if typ != websocket.MessageText {
			g.replyError(client, v1.Envelope{}, badRequest("text frames only"))
			continue
		}

		var env v1.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.replyError(client, v1.Envelope{}, badRequest("invalid JSON"))
			continue
		}
		if err := env.Validate(); err != nil {
			g.replyError(client, env, badRequest("%v", err))
			continue
		}
		if err := g.dispatch(ctx, client, conv, env, now); err != nil {
			log.Debug("envelope rejected", zap.String("type", env.Type), zap.Error(err))
			g.replyError(client, env, err)
		}
	}
}

func (g *WSGateway) dispatch(ctx context.Context, client *Client, conv *Conversation, env v1.Envelope, now time.Time) error {
	switch env.Type {
	case v1.TypeUserInfo:
		return g.onUserInfo(client, conv, env)
	case v1.TypeChat:
		return g.onChat(client, conv, env, now)
	case v1.TypeStatusUpdate:
		return g.onStatusUpdate(client, conv, env)
	case v1.TypeActiveSessions:
		return g.onActiveSessions(ctx, client, env)
	default:
		return badRequest("unsupported type: %s", env.Type)
	}
}

func (g *WSGateway) onUserInfo(client *Client, conv *Conversation, env v1.Envelope) error {
	var p v1.UserInfoPayload
	if err := env.Decode(&p); err != nil {
		return badRequest("%v", err)
	}
	updated, err := g.db.UpdateUserInfo(conv.ID, store.UserInfo{
		FullName:     strings.TrimSpace(p.FullName),
		EmailAddress: strings.TrimSpace(p.EmailAddress),
		MobileNumber: strings.TrimSpace(p.MobileNumber),
	})
	if err != nil {
		return err
	}
	return g.reply(client, env, v1.TypeUserInfoAck, v1.UserInfoAckPayload{Updated: updated})
}

func (g *WSGateway) onChat(client *Client, conv *Conversation, env v1.Envelope, now time.Time) error {
	var p v1.ChatPayload
	if err := env.Decode(&p); err != nil {
		return badRequest("%v", err)
	}
	if p.ConversationID != "" && p.ConversationID != conv.ID {
		return badRequest("conversationId does not match the socket session")
	}
	text := strings.TrimSpace(p.Message)
	if text == "" && p.MediaRef == "" {
		return badRequest("empty message")
	}
	if utf8.RuneCountInString(text) > g.opts.MaxMessageChars {
		return &requestError{code: v1.CodeTooLarge, msg: fmt.Sprintf("message too long: max=%d chars", g.opts.MaxMessageChars)}
	}

	m := &store.Message{
		ConversationID: conv.ID,
		ClientMsgID:    p.ClientMsgID,
		Direction:      convo.Inbound,
		Sender:         p.Sender,
		Body:           text,
		MediaRef:       p.MediaRef,
		Timestamp:      now.UnixMilli(),
	}
	if client.Role == RoleAgent {
		m.Direction = convo.Outbound
		m.Status = convo.StatusSent
	}
	if m.Sender == "" {
		m.Sender = string(client.Role)
	}

	stored, created, err := g.rec.Append(m, convo.ChannelChat)
	if err != nil {
		return err
	}
	if !created {
		// A retried send: answer the sender only, the session already saw it.
		return g.reply(client, env, v1.TypeChat, v1.FromMessage(stored.Convo()))
	}
	if stored.Direction == convo.Outbound && conv.HasRole(RoleVisitor) {
		if _, _, err := g.rec.Advance(stored.MsgID, convo.StatusDelivered); err != nil {
			g.logger.Warn("mark delivered failed", zap.String("msg_id", stored.MsgID), zap.Error(err))
		}
	}
	return nil
}

func (g *WSGateway) onStatusUpdate(client *Client, conv *Conversation, env v1.Envelope) error {
	if client.Role != RoleVisitor {
		return &requestError{code: v1.CodeForbidden, msg: "only visitors report receipts"}
	}
	var p v1.StatusUpdatePayload
	if err := env.Decode(&p); err != nil {
		return badRequest("%v", err)
	}
	st, err := convo.ParseStatus(p.Status)
	if err != nil || (st != convo.StatusDelivered && st != convo.StatusRead) {
		return badRequest("receipts carry delivered or read, got %q", p.Status)
	}
	m, err := g.db.GetMessage(p.MessageID)
	if err != nil {
		return err
	}
	if m == nil || m.ConversationID != conv.ID {
		return badRequest("unknown message %q", p.MessageID)
	}
	_, _, err = g.rec.Advance(m.MsgID, st)
	return err
}

func (g *WSGateway) onActiveSessions(ctx context.Context, client *Client, env v1.Envelope) error {
	if client.Role != RoleAgent {
		return &requestError{code: v1.CodeForbidden, msg: "only agents list sessions"}
	}
	var p v1.ActiveSessionsRequest
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			return badRequest("%v", err)
		}
	}
	res := g.registry.List(ctx, p.Page, p.PageSize)
	resp := v1.ActiveSessionsResponse{
		Sessions:   make([]v1.Session, 0, len(res.Page.Items)),
		Pagination: v1.FromPage(res.Page),
	}
	for _, c := range res.Page.Items {
		resp.Sessions = append(resp.Sessions, v1.ToSession(c))
	}
	if res.Failed {
		resp.Error = res.Err.Error()
	}
	return g.reply(client, env, v1.TypeActiveSessions, resp)
}

func (g *WSGateway) reply(client *Client, req v1.Envelope, typ string, payload any) error {
	env, err := v1.Reply(req, typ, payload)
	if err != nil {
		return err
	}
	if !client.offer(env) {
		return errBackpressure
	}
	return nil
}

func (g *WSGateway) replyError(client *Client, req v1.Envelope, err error) {
	code := v1.CodeInternal
	var rerr *requestError
	if errors.As(err, &rerr) {
		code = rerr.code
	}
	env, merr := v1.Reply(req, v1.TypeError, v1.ErrorPayload{Code: code, Message: err.Error()})
	if merr != nil {
		return
	}
	_ = client.offer(env)
}

// requestError is a rejection reported to the client with its code.
type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{code: v1.CodeBadRequest, msg: fmt.Sprintf(format, args...)}
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// originPatterns derives websocket.Accept host patterns from allowed
// origins. Accept matches against host:port, so every host also gets a
// port wildcard. "*" allows every origin.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" {
			return []string{"*"}
		}
		if h := originHost(a); h != "" {
			seen[h] = struct{}{}
			seen[h+":*"] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

func originHost(s string) string {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}
