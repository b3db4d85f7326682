package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matheus3301/convsync/internal/convo"
)

const (
	eventMessage = "message"
	eventStatus  = "status"
)

func logEvent(tx *sql.Tx, conversationID, kind, msgID string, status convo.Status, now int64) error {
	if _, err := tx.Exec(`
		INSERT INTO events (conversation_id, kind, msg_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, kind, msgID, status.String(), now); err != nil {
		return fmt.Errorf("log %s event: %w", kind, err)
	}
	return nil
}

// Updates returns what changed in a conversation after cursor: messages
// appended and status advances, in log order. The returned cursor is the
// last change seen, or the given cursor if nothing changed.
func (db *DB) Updates(ctx context.Context, conversationID string, cursor int64, limit int) ([]Message, []StatusEvent, int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT e.seq, e.kind, e.msg_id, e.status,
			m.seq, m.msg_id, m.conversation_id, m.client_msg_id, m.direction, m.sender, m.body, m.media_ref, m.status, m.timestamp
		FROM events e
		JOIN messages m ON m.msg_id = e.msg_id
		WHERE e.conversation_id = ? AND e.seq > ?
		ORDER BY e.seq
		LIMIT ?`, conversationID, cursor, limit)
	if err != nil {
		return nil, nil, cursor, fmt.Errorf("query updates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		msgs     []Message
		statuses []StatusEvent
	)
	for rows.Next() {
		var (
			seq         int64
			kind, msgID string
			evtStatus   string
		)
		m, err := scanMessage(prefixScanner{rows, []any{&seq, &kind, &msgID, &evtStatus}})
		if err != nil {
			return nil, nil, cursor, err
		}
		cursor = seq
		switch kind {
		case eventMessage:
			msgs = append(msgs, *m)
		case eventStatus:
			st, err := convo.ParseStatus(evtStatus)
			if err != nil {
				return nil, nil, cursor, err
			}
			statuses = append(statuses, StatusEvent{Seq: seq, ConversationID: conversationID, MsgID: msgID, Status: st})
		}
	}
	return msgs, statuses, cursor, rows.Err()
}

// prefixScanner scans leading columns into prefix before handing the rest to
// a row scanner.
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(p.prefix, dest...)...)
}

// LatestCursor returns the newest change sequence of a conversation, or 0 if
// it has none. Pollers start from it to skip the backlog they already fetched
// as history.
func (db *DB) LatestCursor(ctx context.Context, conversationID string) (int64, error) {
	var seq sql.NullInt64
	if err := db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM events WHERE conversation_id = ?`, conversationID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest cursor: %w", err)
	}
	return seq.Int64, nil
}
