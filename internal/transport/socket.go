package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/status"
)

const (
	maxFrameBytes = 64 << 10
	writeTimeout  = 10 * time.Second

	confirmInterval = 200 * time.Millisecond
	confirmAttempts = 10
)

var errNotStored = errors.New("message not stored")

// SocketOptions configures a SocketChannel.
type SocketOptions struct {
	// BaseURL is the gateway http(s) base URL; the socket path is derived from it.
	BaseURL          string
	Role             string
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Bus              *bus.Bus
	Logger           *zap.Logger

	// Client confirms sends whose echo was lost with the connection. Without
	// it such sends report the connection error.
	Client *Client
}

type reply struct {
	env v1.Envelope
	err error
}

// SocketChannel is a widget chat conversation reached over the gateway's
// WebSocket endpoint.
type SocketChannel struct {
	opts    SocketOptions
	logger  *zap.Logger
	machine *status.Machine
	disp    dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	convID    string
	waiters   map[string]chan reply
	closed    bool
	closeOnce sync.Once
}

// NewSocketChannel creates a channel for conversationID. An empty id asks
// the gateway to start a new conversation.
func NewSocketChannel(conversationID string, opts SocketOptions) *SocketChannel {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Role == "" {
		opts.Role = "agent"
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketChannel{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("channel", "socket")),
		machine: status.NewMachine(conversationID, opts.Bus),
		ctx:     ctx,
		cancel:  cancel,
		convID:  conversationID,
		waiters: make(map[string]chan reply),
	}
}

// Connect dials the gateway and waits for the welcome.
func (c *SocketChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connecting)
	conn, convID, err := c.dial(ctx)
	if err != nil {
		_ = c.machine.Transition(status.Error)
		return &ConnectionError{Op: "connect", Err: err}
	}
	if !c.attach(conn, convID) {
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return ErrClosed
	}
	_ = c.machine.Transition(status.Connected)
	c.logger.Info("socket connected", zap.String("conversation_id", convID))
	c.disp.dispatch(Event{Kind: EventWelcome, ConversationID: convID})

	go c.run()
	return nil
}

func (c *SocketChannel) endpoint() (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u = u.JoinPath("/ws/chat")
	q := url.Values{}
	q.Set("role", c.opts.Role)
	if id := c.ConversationID(); id != "" {
		q.Set("conversationId", id)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// dial opens a connection and reads the welcome envelope.
func (c *SocketChannel) dial(ctx context.Context) (*websocket.Conn, string, error) {
	target, err := c.endpoint()
	if err != nil {
		return nil, "", err
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
	})
	if err != nil {
		return nil, "", err
	}
	conn.SetReadLimit(maxFrameBytes)

	var env v1.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, "", fmt.Errorf("read welcome: %w", err)
	}
	if env.Type != v1.TypeWelcome {
		_ = conn.Close(websocket.StatusProtocolError, "expected welcome")
		return nil, "", fmt.Errorf("expected welcome, got %q", env.Type)
	}
	var w v1.WelcomePayload
	if err := env.Decode(&w); err != nil || w.ConversationID == "" {
		_ = conn.Close(websocket.StatusProtocolError, "bad welcome")
		return nil, "", fmt.Errorf("bad welcome: %v", err)
	}
	return conn, w.ConversationID, nil
}

func (c *SocketChannel) attach(conn *websocket.Conn, convID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	if c.convID == "" {
		c.convID = convID
		c.machine.Rename(convID)
	}
	return true
}

func (c *SocketChannel) detach(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	waiters := c.waiters
	c.waiters = make(map[string]chan reply)
	c.mu.Unlock()

	// A waiter registered under two keys sees the second notify dropped.
	for _, ch := range waiters {
		select {
		case ch <- reply{err: &ConnectionError{Op: "read", Err: cause}}:
		default:
		}
	}
}

func (c *SocketChannel) run() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		err := c.readLoop(conn)
		c.detach(conn, err)
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("socket lost", zap.String("conversation_id", c.ConversationID()), zap.Error(err))
		if !c.reconnect() {
			return
		}
	}
}

func (c *SocketChannel) readLoop(conn *websocket.Conn) error {
	for {
		var env v1.Envelope
		if err := wsjson.Read(c.ctx, conn, &env); err != nil {
			return err
		}
		if err := env.Validate(); err != nil {
			c.logger.Debug("dropping invalid envelope", zap.Error(err))
			continue
		}
		c.handle(env)
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// channel is closed.
func (c *SocketChannel) reconnect() bool {
	_ = c.machine.Transition(status.Reconnecting)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	op := func() error {
		metrics.ReconnectsTotal.WithLabelValues("socket").Inc()
		_ = c.machine.Transition(status.Connecting)
		conn, convID, err := c.dial(c.ctx)
		if err != nil {
			_ = c.machine.Transition(status.Reconnecting)
			return err
		}
		if !c.attach(conn, convID) {
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return backoff.Permanent(ErrClosed)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("socket reconnect failed",
			zap.String("conversation_id", c.ConversationID()),
			zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil {
		return false
	}

	_ = c.machine.Transition(status.Connected)
	c.logger.Info("socket reconnected", zap.String("conversation_id", c.ConversationID()))
	c.disp.dispatch(Event{Kind: EventWelcome, ConversationID: c.ConversationID()})
	return true
}

func (c *SocketChannel) handle(env v1.Envelope) {
	switch env.Type {
	case v1.TypeChat:
		var p v1.ChatPayload
		if err := env.Decode(&p); err != nil {
			c.logger.Debug("bad chat payload", zap.Error(err))
			return
		}
		if p.ClientMsgID != "" {
			c.resolve("cmid:"+p.ClientMsgID, env)
		}
		msg, err := v1.ToMessage(p)
		if err != nil {
			c.logger.Debug("bad chat payload", zap.Error(err))
			return
		}
		if msg.ConversationID == "" {
			msg.ConversationID = c.ConversationID()
		}
		c.disp.dispatch(Event{Kind: EventChat, ConversationID: msg.ConversationID, Message: msg})

	case v1.TypeStatusUpdate:
		var p v1.StatusUpdatePayload
		if err := env.Decode(&p); err != nil {
			return
		}
		st, err := convo.ParseStatus(p.Status)
		if err != nil || p.MessageID == "" {
			return
		}
		convID := p.ConversationID
		if convID == "" {
			convID = c.ConversationID()
		}
		c.disp.dispatch(Event{Kind: EventStatusUpdate, ConversationID: convID, MessageID: p.MessageID, Status: st})

	case v1.TypeActiveSessions:
		if env.Ref != "" && c.resolve("env:"+env.Ref, env) {
			return
		}
		page, err := decodeSessions(env)
		if err != nil {
			return
		}
		c.disp.dispatch(Event{Kind: EventActiveSessions, ConversationID: c.ConversationID(), Sessions: page})

	case v1.TypeUserInfoAck, v1.TypeError:
		if env.Ref != "" && c.resolve("env:"+env.Ref, env) {
			return
		}
		if env.Type == v1.TypeError {
			var p v1.ErrorPayload
			_ = env.Decode(&p)
			c.logger.Warn("gateway error", zap.String("code", p.Code), zap.String("message", p.Message))
		}
	}
}

func (c *SocketChannel) await(keys ...string) chan reply {
	ch := make(chan reply, 1)
	c.mu.Lock()
	for _, k := range keys {
		c.waiters[k] = ch
	}
	c.mu.Unlock()
	return ch
}

func (c *SocketChannel) release(keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.waiters, k)
	}
	c.mu.Unlock()
}

func (c *SocketChannel) resolve(key string, env v1.Envelope) bool {
	c.mu.Lock()
	ch, ok := c.waiters[key]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- reply{env: env}:
	default:
	}
	return true
}

func (c *SocketChannel) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil {
		return nil, &ConnectionError{Op: "send", Err: errors.New("not connected")}
	}
	return c.conn, nil
}

func (c *SocketChannel) write(ctx context.Context, conn *websocket.Conn, env v1.Envelope) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, env); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// Send writes a chat envelope and waits for the gateway's echo carrying the
// canonical id, or for an error referencing the envelope.
func (c *SocketChannel) Send(ctx context.Context, out Outbound) (SendResult, error) {
	conn, err := c.current()
	if err != nil {
		return SendResult{Error: err.Error()}, err
	}
	if out.ClientMsgID == "" {
		out.ClientMsgID = uuid.NewString()
	}
	convID := out.ConversationID
	if convID == "" {
		convID = c.ConversationID()
	}
	env, err := v1.NewEnvelope(v1.TypeChat, v1.ChatPayload{
		ConversationID: convID,
		ClientMsgID:    out.ClientMsgID,
		Message:        out.Content,
		Sender:         c.opts.Role,
		Direction:      string(convo.Outbound),
		Timestamp:      time.Now().UnixMilli(),
		MediaRef:       out.MediaRef,
	})
	if err != nil {
		return SendResult{Error: err.Error()}, err
	}

	keys := []string{"env:" + env.ID, "cmid:" + out.ClientMsgID}
	wait := c.await(keys...)
	defer c.release(keys...)

	if err := c.write(ctx, conn, env); err != nil {
		return SendResult{Error: err.Error()}, err
	}

	select {
	case <-ctx.Done():
		return SendResult{Error: ctx.Err().Error()}, ctx.Err()
	case r := <-wait:
		if r.err != nil {
			return c.confirm(ctx, convID, out.ClientMsgID, r.err)
		}
		if r.env.Type == v1.TypeError {
			var p v1.ErrorPayload
			_ = r.env.Decode(&p)
			return SendResult{Error: p.Message}, nil
		}
		var p v1.ChatPayload
		if err := r.env.Decode(&p); err != nil {
			return SendResult{Error: err.Error()}, err
		}
		return SendResult{Success: true, ProviderMessageID: p.MessageID}, nil
	}
}

// confirm resolves a written send whose echo was lost to a disconnect or to
// Close. The gateway stores chat messages once per client message id, so a
// stored row means the send went through.
func (c *SocketChannel) confirm(ctx context.Context, convID, clientMsgID string, cause error) (SendResult, error) {
	if c.opts.Client == nil || convID == "" {
		return SendResult{Error: cause.Error()}, cause
	}
	var found convo.Message
	op := func() error {
		m, ok, err := c.opts.Client.FindSent(ctx, convID, clientMsgID)
		if err != nil {
			return err
		}
		if !ok {
			return errNotStored
		}
		found = m
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(confirmInterval), confirmAttempts)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		c.logger.Warn("send unconfirmed after connection loss",
			zap.String("conversation_id", convID),
			zap.String("client_msg_id", clientMsgID),
			zap.Error(err))
		return SendResult{Error: cause.Error()}, cause
	}
	c.logger.Debug("send confirmed through history",
		zap.String("conversation_id", convID),
		zap.String("message_id", found.ID))
	return SendResult{Success: true, ProviderMessageID: found.ID}, nil
}

// request sends an envelope and waits for the envelope referencing it.
func (c *SocketChannel) request(ctx context.Context, typ string, payload any) (v1.Envelope, error) {
	conn, err := c.current()
	if err != nil {
		return v1.Envelope{}, err
	}
	env, err := v1.NewEnvelope(typ, payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	key := "env:" + env.ID
	wait := c.await(key)
	defer c.release(key)

	if err := c.write(ctx, conn, env); err != nil {
		return v1.Envelope{}, err
	}
	select {
	case <-ctx.Done():
		return v1.Envelope{}, ctx.Err()
	case r := <-wait:
		if r.err != nil {
			return v1.Envelope{}, r.err
		}
		if r.env.Type == v1.TypeError {
			var p v1.ErrorPayload
			_ = r.env.Decode(&p)
			return v1.Envelope{}, fmt.Errorf("%s: %s: %s", typ, p.Code, p.Message)
		}
		return r.env, nil
	}
}

// UpdateUserInfo stores the visitor's contact details on the conversation.
func (c *SocketChannel) UpdateUserInfo(ctx context.Context, info v1.UserInfoPayload) (bool, error) {
	env, err := c.request(ctx, v1.TypeUserInfo, info)
	if err != nil {
		return false, err
	}
	var ack v1.UserInfoAckPayload
	if err := env.Decode(&ack); err != nil {
		return false, err
	}
	return ack.Updated, nil
}

// ActiveSessions lists active conversations through the socket.
func (c *SocketChannel) ActiveSessions(ctx context.Context, page, pageSize int) (convo.Page[convo.Conversation], error) {
	env, err := c.request(ctx, v1.TypeActiveSessions, v1.ActiveSessionsRequest{Page: page, PageSize: pageSize})
	if err != nil {
		return convo.Page[convo.Conversation]{}, err
	}
	return decodeSessions(env)
}

func decodeSessions(env v1.Envelope) (convo.Page[convo.Conversation], error) {
	var p v1.ActiveSessionsResponse
	if err := env.Decode(&p); err != nil {
		return convo.Page[convo.Conversation]{}, err
	}
	if p.Error != "" {
		return convo.EmptyPage[convo.Conversation](p.Pagination.Limit, p.Pagination.Offset),
			fmt.Errorf("active sessions: %s", p.Error)
	}
	items := make([]convo.Conversation, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		items = append(items, v1.FromSession(s))
	}
	return convo.NewPage(items, p.Pagination.Total, p.Pagination.Limit, p.Pagination.Offset), nil
}

// OnEvent registers h.
func (c *SocketChannel) OnEvent(h Handler) { c.disp.add(h) }

// ConversationID returns the conversation id, empty until the first welcome
// when none was given.
func (c *SocketChannel) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// State returns the connection state.
func (c *SocketChannel) State() status.State { return c.machine.Current() }

// Close stops the reader and any reconnect loop.
func (c *SocketChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		c.disp.close()
		c.cancel()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
		}
		_ = c.machine.Transition(status.Closed)
	})
	return nil
}
