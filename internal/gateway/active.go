package gateway

import (
	"context"
	"time"

	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/store"
)

// ActiveLister serves the Session Registry from the Message Store. A
// conversation is active when it was created or last written within window;
// a zero window lists every conversation.
type ActiveLister struct {
	db     *store.DB
	window time.Duration
	now    func() time.Time
}

// NewActiveLister creates an ActiveLister.
func NewActiveLister(db *store.DB, window time.Duration) *ActiveLister {
	return &ActiveLister{db: db, window: window, now: time.Now}
}

// ListConversations implements registry.Lister.
func (l *ActiveLister) ListConversations(ctx context.Context, limit, offset int) ([]convo.Conversation, int, error) {
	var since int64
	if l.window > 0 {
		since = l.now().Add(-l.window).UnixMilli()
	}
	rows, total, err := l.db.ListConversations(ctx, since, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]convo.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Convo())
	}
	return out, total, nil
}
