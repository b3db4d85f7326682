package store

import "time"

// RecordSendAttempt logs a provider send that is about to start.
func (db *DB) RecordSendAttempt(conversationID, clientMsgID, body string) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO send_attempts (conversation_id, client_msg_id, body, status, created_at, updated_at)
		VALUES (?, ?, ?, 'sending', ?, ?)`,
		conversationID, clientMsgID, body, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// MarkAttemptSent records the provider's message id for an attempt.
func (db *DB) MarkAttemptSent(id int64, providerMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE send_attempts SET status = 'sent', provider_msg_id = ?, updated_at = ? WHERE id = ?`, providerMsgID, now, id)
	return err
}

// MarkAttemptFailed records why an attempt failed.
func (db *DB) MarkAttemptFailed(id int64, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE send_attempts SET status = 'failed', error_message = ?, updated_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// ListSendAttempts returns a conversation's attempts, oldest first.
func (db *DB) ListSendAttempts(conversationID string) ([]SendAttempt, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, client_msg_id, body, status, provider_msg_id, error_message, created_at
		FROM send_attempts WHERE conversation_id = ? ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var attempts []SendAttempt
	for rows.Next() {
		var a SendAttempt
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.ClientMsgID, &a.Body, &a.Status, &a.ProviderMsgID, &a.ErrorMessage, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
