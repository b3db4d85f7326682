package v1

// SendRequest is the body of POST /api/whatsapp/send. ClientMsgID makes a
// repeated request return the first result instead of sending twice.
type SendRequest struct {
	To          string `json:"to"`
	Content     string `json:"content"`
	MediaRef    string `json:"mediaRef,omitempty"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// SendResponse answers SendRequest. On Success=false the caller runs its
// failure path.
type SendResponse struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// MessageList is the body of GET /api/messages.
type MessageList struct {
	Items      []ChatPayload `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// SessionList is the body of GET /api/sessions.
type SessionList struct {
	Items      []Session  `json:"items"`
	Pagination Pagination `json:"pagination"`
	Error      string     `json:"error,omitempty"`
}

// UpdatesResponse is the body of GET /api/whatsapp/updates. Cursor is passed
// back on the next poll.
type UpdatesResponse struct {
	Messages      []ChatPayload         `json:"messages"`
	StatusUpdates []StatusUpdatePayload `json:"statusUpdates"`
	Cursor        int64                 `json:"cursor"`
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
	// HistorySyncedAt is when the provider last delivered a history batch (ms).
	HistorySyncedAt int64 `json:"historySyncedAt,omitempty"`
}
