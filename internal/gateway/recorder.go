package gateway

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/metrics"
	"github.com/matheus3301/convsync/internal/store"
)

// StatusAdvance is the payload of bus.KindStoreStatus.
type StatusAdvance struct {
	ConversationID string
	MessageID      string
	Status         convo.Status
}

// Recorder writes to the Message Store and announces every change on the
// bus: bus.KindStoreAppended carries the stored convo.Message and
// bus.KindStoreStatus a StatusAdvance. Sockets learn about changes only
// through these events, whichever path wrote them.
type Recorder struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{db: db, bus: b, logger: logger}
}

// Append stores m. A repeated append returns the first row and created=false
// and announces nothing.
func (r *Recorder) Append(m *store.Message, channel convo.Channel) (*store.Message, bool, error) {
	stored, created, err := r.db.AppendMessage(m, channel)
	if err != nil {
		return nil, false, fmt.Errorf("append message: %w", err)
	}
	if !created {
		return stored, false, nil
	}
	metrics.MessagesStored.WithLabelValues(string(channel), string(stored.Direction)).Inc()
	r.bus.Emit(bus.KindStoreAppended, stored.Convo())
	return stored, true, nil
}

// Advance moves a stored message's status forward. Unknown ids and stale
// statuses report changed=false.
func (r *Recorder) Advance(msgID string, st convo.Status) (*store.Message, bool, error) {
	m, changed, err := r.db.AdvanceStatus(msgID, st)
	if err != nil {
		return nil, false, fmt.Errorf("advance %s: %w", msgID, err)
	}
	if !changed {
		return m, false, nil
	}
	metrics.StatusAdvances.WithLabelValues(m.Status.String()).Inc()
	r.bus.Emit(bus.KindStoreStatus, StatusAdvance{
		ConversationID: m.ConversationID,
		MessageID:      m.MsgID,
		Status:         m.Status,
	})
	r.logger.Debug("status advanced", zap.String("msg_id", msgID), zap.Stringer("status", m.Status))
	return m, true, nil
}
