package gateway

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/status"
	"github.com/matheus3301/convsync/internal/store"
)

// Ingest stores what the provider observes on the network: inbound and
// history messages are appended idempotently, receipts advance statuses.
type Ingest struct {
	rec    *Recorder
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewIngest creates an Ingest.
func NewIngest(rec *Recorder, b *bus.Bus, logger *zap.Logger) *Ingest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingest{rec: rec, bus: b, logger: logger}
}

// Start subscribes to provider events on the bus.
func (i *Ingest) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)
	ch, unsub := i.bus.Subscribe("provider.", 256)
	i.done = make(chan struct{})

	go func() {
		defer close(i.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				i.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the ingest loop and waits for the event in flight.
func (i *Ingest) Stop() {
	if i.cancel != nil {
		i.cancel()
		<-i.done
	}
}

func (i *Ingest) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindProviderMessage:
		msg, ok := evt.Payload.(provider.Inbound)
		if !ok {
			return
		}
		if err := i.IngestMessage(msg); err != nil {
			i.logger.Error("failed to ingest message", zap.String("msg_id", msg.MessageID), zap.Error(err))
		}
	case bus.KindProviderHistory:
		msgs, ok := evt.Payload.([]provider.Inbound)
		if !ok {
			return
		}
		stored := 0
		for _, m := range msgs {
			if err := i.IngestMessage(m); err != nil {
				i.logger.Warn("skipping history message", zap.String("msg_id", m.MessageID), zap.Error(err))
				continue
			}
			stored++
		}
		i.logger.Info("history batch ingested", zap.Int("messages", stored), zap.Int("received", len(msgs)))
		if err := i.rec.db.SetSyncState(store.KeyHistorySyncedAt, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
			i.logger.Warn("failed to record history checkpoint", zap.Error(err))
		}
	case bus.KindProviderReceipt:
		r, ok := evt.Payload.(provider.Receipt)
		if !ok {
			return
		}
		i.IngestReceipt(r)
	case bus.KindProviderState:
		if st, ok := evt.Payload.(status.State); ok {
			i.logger.Info("provider state", zap.String("state", string(st)))
		}
	}
}

// IngestMessage stores one provider message. Messages the paired account sent
// are stored outbound with status sent.
func (i *Ingest) IngestMessage(m provider.Inbound) error {
	row := &store.Message{
		MsgID:          m.MessageID,
		ConversationID: m.Phone,
		Direction:      m.Direction(),
		Sender:         m.SenderName,
		Body:           m.Body,
		MediaRef:       m.MediaRef,
		Timestamp:      m.Timestamp,
	}
	if row.Direction == convo.Outbound {
		row.Status = convo.StatusSent
		if row.Sender == "" {
			row.Sender = string(RoleAgent)
		}
	} else if row.Sender == "" {
		row.Sender = m.Phone
	}
	_, _, err := i.rec.Append(row, convo.ChannelWhatsApp)
	return err
}

// IngestReceipt advances every message named by r. Unknown ids are skipped.
func (i *Ingest) IngestReceipt(r provider.Receipt) {
	for _, id := range r.MessageIDs {
		if _, _, err := i.rec.Advance(id, r.Status); err != nil {
			i.logger.Warn("failed to apply receipt", zap.String("msg_id", id), zap.Error(err))
		}
	}
}
