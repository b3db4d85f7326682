package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/convsync/internal/convo"
)

const conversationColumns = `id, channel, created_at, last_message_at, last_message_preview, full_name, email_address, mobile_number`

// EnsureConversation creates a conversation row if it does not exist yet.
func (db *DB) EnsureConversation(id string, channel convo.Channel, createdAt int64) error {
	_, err := db.CreateConversation(id, channel, createdAt)
	return err
}

// CreateConversation inserts a conversation row. It reports false when the id
// is already taken.
func (db *DB) CreateConversation(id string, channel convo.Channel, createdAt int64) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO conversations (id, channel, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, string(channel), createdAt, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetConversation returns a conversation by id, or nil if unknown.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns conversations with activity at or after since,
// most recent first, and the total number of such conversations.
func (db *DB) ListConversations(ctx context.Context, since int64, limit, offset int) ([]Conversation, int, error) {
	var total int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE MAX(last_message_at, created_at) >= ?`, since).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE MAX(last_message_at, created_at) >= ?
		ORDER BY MAX(last_message_at, created_at) DESC, id
		LIMIT ? OFFSET ?`, since, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, *c)
	}
	return convs, total, rows.Err()
}

// UpdateUserInfo stores a visitor's contact details. It reports false when
// the conversation does not exist.
func (db *DB) UpdateUserInfo(id string, info UserInfo) (bool, error) {
	res, err := db.Exec(`
		UPDATE conversations
		SET full_name = ?, email_address = ?, mobile_number = ?, updated_at = ?
		WHERE id = ?`,
		info.FullName, info.EmailAddress, info.MobileNumber, time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("update user info: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanConversation(s scanner) (*Conversation, error) {
	var (
		c       Conversation
		channel string
	)
	if err := s.Scan(&c.ID, &channel, &c.CreatedAt, &c.LastMessageAt, &c.LastMessagePreview, &c.FullName, &c.EmailAddress, &c.MobileNumber); err != nil {
		return nil, err
	}
	c.Channel = convo.Channel(channel)
	return &c, nil
}
