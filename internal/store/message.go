package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/convsync/internal/convo"
)

const previewLen = 100

const messageColumns = `seq, msg_id, conversation_id, client_msg_id, direction, sender, body, media_ref, status, timestamp`

// AppendMessage stores a message, creating its conversation on first use.
// It is idempotent on msg_id and on (conversation_id, client_msg_id): a
// repeated append returns the stored row and created=false. An empty MsgID
// is assigned a new canonical id and a zero Timestamp the current time.
func (db *DB) AppendMessage(m *Message, channel convo.Channel) (stored *Message, created bool, err error) {
	now := time.Now().UnixMilli()
	if m.Timestamp == 0 {
		m.Timestamp = now
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if existing, err := findDuplicate(tx, m); err != nil || existing != nil {
		return existing, false, err
	}
	if m.MsgID == "" {
		m.MsgID = NewMessageID(time.UnixMilli(m.Timestamp))
	}

	if _, err := tx.Exec(`
		INSERT INTO conversations (id, channel, created_at, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at
				THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		m.ConversationID, string(channel), m.Timestamp, m.Timestamp, truncate(m.Body, previewLen), now); err != nil {
		return nil, false, fmt.Errorf("upsert conversation: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO messages (msg_id, conversation_id, client_msg_id, direction, sender, body, media_ref, status, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MsgID, m.ConversationID, m.ClientMsgID, string(m.Direction), m.Sender, m.Body, m.MediaRef, m.Status.String(), m.Timestamp, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	if m.Seq, err = res.LastInsertId(); err != nil {
		return nil, false, fmt.Errorf("message seq: %w", err)
	}

	if err := logEvent(tx, m.ConversationID, eventMessage, m.MsgID, m.Status, now); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit append: %w", err)
	}
	return m, true, nil
}

func findDuplicate(tx *sql.Tx, m *Message) (*Message, error) {
	if m.MsgID == "" && m.ClientMsgID == "" {
		return nil, nil
	}
	existing, err := scanMessage(tx.QueryRow(`
		SELECT `+messageColumns+` FROM messages
		WHERE msg_id = ? OR (client_msg_id != '' AND conversation_id = ? AND client_msg_id = ?)
		LIMIT 1`, m.MsgID, m.ConversationID, m.ClientMsgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duplicate: %w", err)
	}
	return existing, nil
}

// GetMessage returns a message by canonical id, or nil if unknown.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FindByClientMsgID returns the message a client stored under clientMsgID in
// a conversation, or nil.
func (db *DB) FindByClientMsgID(conversationID, clientMsgID string) (*Message, error) {
	if clientMsgID == "" {
		return nil, nil
	}
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ? AND client_msg_id = ?`, conversationID, clientMsgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AdvanceStatus moves a message's status forward. It reports whether the
// stored status changed; unknown ids and non-advancing updates are no-ops.
func (db *DB) AdvanceStatus(msgID string, status convo.Status) (*Message, bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMessage(tx.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load message: %w", err)
	}
	if m.Direction != convo.Outbound {
		return m, false, nil
	}
	next, changed := convo.Advance(m.Status, status)
	if !changed {
		return m, false, nil
	}

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE msg_id = ?`, next.String(), now, msgID); err != nil {
		return nil, false, fmt.Errorf("update status: %w", err)
	}
	if err := logEvent(tx, m.ConversationID, eventStatus, msgID, next, now); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit status: %w", err)
	}
	m.Status = next
	return m, true, nil
}

// ListMessages returns a newest-first window of messages, ordered ascending
// within the window, and the total number of matching messages. An empty
// conversationID lists every conversation.
func (db *DB) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]Message, int, error) {
	where, args := "", []any{}
	if conversationID != "" {
		where, args = "WHERE conversation_id = ?", append(args, conversationID)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages `+where+`
		ORDER BY timestamp DESC, seq DESC
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*Message, error) {
	var (
		m         Message
		direction string
		status    string
	)
	if err := s.Scan(&m.Seq, &m.MsgID, &m.ConversationID, &m.ClientMsgID, &direction, &m.Sender, &m.Body, &m.MediaRef, &status, &m.Timestamp); err != nil {
		return nil, err
	}
	m.Direction = convo.Direction(direction)
	st, err := convo.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", m.MsgID, err)
	}
	m.Status = st
	return &m, nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
