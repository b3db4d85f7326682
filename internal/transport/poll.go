package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/status"
)

// PollOptions configures a PollChannel.
type PollOptions struct {
	Interval         time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	Bus              *bus.Bus
	Logger           *zap.Logger
}

// PollChannel is a WhatsApp thread reached through the gateway REST API.
// Sends are request/response; inbound messages and receipts are polled.
type PollChannel struct {
	client  *Client
	phone   string
	opts    PollOptions
	logger  *zap.Logger
	machine *status.Machine
	disp    dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	cursor    *int64
	started   bool
	closeOnce sync.Once
}

// NewPollChannel creates a channel for the thread with phone.
func NewPollChannel(client *Client, phone string, opts PollOptions) *PollChannel {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollChannel{
		client:  client,
		phone:   phone,
		opts:    opts,
		logger:  opts.Logger.With(zap.String("channel", "poll"), zap.String("conversation_id", phone)),
		machine: status.NewMachine(phone, opts.Bus),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Connect probes the gateway and starts polling.
func (c *PollChannel) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connecting)
	if _, err := c.client.Health(ctx); err != nil {
		_ = c.machine.Transition(status.Error)
		return &ConnectionError{Op: "connect", Err: err}
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.disp.dispatch(Event{Kind: EventWelcome, ConversationID: c.phone})
	go c.run()
	return nil
}

func (c *PollChannel) run() {
	t := time.NewTicker(c.opts.Interval)
	defer t.Stop()

	for {
		if err := c.poll(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("poll failed", zap.Error(err))
			if !c.resume() {
				return
			}
		}
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
		}
	}
}

// poll fetches one batch of updates and dispatches them.
func (c *PollChannel) poll(ctx context.Context) error {
	c.mu.Lock()
	cursor := c.cursor
	c.mu.Unlock()

	resp, err := c.client.Updates(ctx, c.phone, cursor)
	if err != nil {
		return err
	}

	c.mu.Lock()
	next := resp.Cursor
	c.cursor = &next
	c.mu.Unlock()

	for _, p := range resp.Messages {
		msg, err := v1.ToMessage(p)
		if err != nil {
			c.logger.Debug("bad update message", zap.Error(err))
			continue
		}
		if msg.ConversationID == "" {
			msg.ConversationID = c.phone
		}
		c.disp.dispatch(Event{Kind: EventChat, ConversationID: c.phone, Message: msg})
	}
	for _, p := range resp.StatusUpdates {
		st, err := convo.ParseStatus(p.Status)
		if err != nil || p.MessageID == "" {
			continue
		}
		c.disp.dispatch(Event{Kind: EventStatusUpdate, ConversationID: c.phone, MessageID: p.MessageID, Status: st})
	}
	return nil
}

// resume waits with exponential backoff until the gateway answers again.
func (c *PollChannel) resume() bool {
	_ = c.machine.Transition(status.Reconnecting)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	op := func() error {
		metrics.ReconnectsTotal.WithLabelValues("poll").Inc()
		_ = c.machine.Transition(status.Connecting)
		if _, err := c.client.Health(c.ctx); err != nil {
			_ = c.machine.Transition(status.Reconnecting)
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("gateway unreachable", zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil {
		return false
	}
	_ = c.machine.Transition(status.Connected)
	c.disp.dispatch(Event{Kind: EventWelcome, ConversationID: c.phone})
	return true
}

// Send delivers a message through the gateway's WhatsApp provider.
func (c *PollChannel) Send(ctx context.Context, out Outbound) (SendResult, error) {
	if c.ctx.Err() != nil {
		return SendResult{Error: ErrClosed.Error()}, ErrClosed
	}
	to := out.ConversationID
	if to == "" {
		to = c.phone
	}
	resp, err := c.client.SendWhatsApp(ctx, v1.SendRequest{To: to, Content: out.Content, MediaRef: out.MediaRef, ClientMsgID: out.ClientMsgID})
	if err != nil {
		return SendResult{Error: err.Error()}, err
	}
	return SendResult{Success: resp.Success, ProviderMessageID: resp.ProviderMessageID, Error: resp.Error}, nil
}

// OnEvent registers h.
func (c *PollChannel) OnEvent(h Handler) { c.disp.add(h) }

// ConversationID returns the phone number.
func (c *PollChannel) ConversationID() string { return c.phone }

// State returns the connection state.
func (c *PollChannel) State() status.State { return c.machine.Current() }

// Close stops polling.
func (c *PollChannel) Close() error {
	c.closeOnce.Do(func() {
		c.disp.close()
		c.cancel()
		_ = c.machine.Transition(status.Closed)
	})
	return nil
}
