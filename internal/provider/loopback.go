package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
)

// Loopback is an in-process provider for development and tests. Every sent
// message is acknowledged, then marked delivered; messages starting with
// "echo " are answered by the counterparty.
type Loopback struct {
	bus       *bus.Bus
	logger    *zap.Logger
	failEvery int
	delay     time.Duration

	mu      sync.Mutex
	sent    int
	started bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewLoopback creates a loopback provider. A positive failEvery rejects every
// Nth send.
func NewLoopback(b *bus.Bus, failEvery int, logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loopback{
		bus:       b,
		logger:    logger,
		failEvery: failEvery,
		delay:     50 * time.Millisecond,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *Loopback) Name() string { return "loopback" }

func (l *Loopback) Start(context.Context) error {
	l.mu.Lock()
	l.started = true
	l.mu.Unlock()
	l.logger.Info("loopback provider started")
	return nil
}

func (l *Loopback) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Loopback) Send(ctx context.Context, to, content, mediaRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return "", ErrNotPaired
	}
	l.sent++
	n := l.sent
	l.mu.Unlock()

	if l.failEvery > 0 && n%l.failEvery == 0 {
		return "", fmt.Errorf("loopback: rejected send #%d to %s", n, to)
	}

	id := "lb-" + uuid.NewString()
	l.wg.Add(1)
	go l.afterSend(to, id, content)
	return id, nil
}

func (l *Loopback) afterSend(to, id, content string) {
	defer l.wg.Done()
	select {
	case <-l.ctx.Done():
		return
	case <-time.After(l.delay):
	}
	if l.bus == nil {
		return
	}
	l.bus.Emit(bus.KindProviderReceipt, Receipt{Phone: to, MessageIDs: []string{id}, Status: convo.StatusDelivered})

	if reply, ok := strings.CutPrefix(content, "echo "); ok {
		l.bus.Emit(bus.KindProviderMessage, Inbound{
			Phone:     to,
			MessageID: "lb-" + uuid.NewString(),
			Body:      reply,
			Kind:      "text",
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
