package convsyncv1

// Message is one entry of a reconciled view.
type Message struct {
	ID             string `json:"id"`
	LocalID        string `json:"localId,omitempty"`
	Provisional    bool   `json:"provisional,omitempty"`
	ConversationID string `json:"conversationId"`
	Direction      string `json:"direction"`
	Sender         string `json:"sender,omitempty"`
	Content        string `json:"content"`
	MediaRef       string `json:"mediaRef,omitempty"`
	SentAtUnixMs   int64  `json:"sentAtUnixMs"`
	Status         string `json:"status,omitempty"`
}

// Session is one entry of the session registry.
type Session struct {
	ID                  string `json:"id"`
	Channel             string `json:"channel"`
	CreatedAtUnixMs     int64  `json:"createdAtUnixMs,omitempty"`
	LastMessageAtUnixMs int64  `json:"lastMessageAtUnixMs,omitempty"`
	LastMessagePreview  string `json:"lastMessagePreview,omitempty"`
	FullName            string `json:"fullName,omitempty"`
	EmailAddress        string `json:"emailAddress,omitempty"`
	MobileNumber        string `json:"mobileNumber,omitempty"`
}

type PageInfo struct {
	Total   int32 `json:"total"`
	Limit   int32 `json:"limit"`
	Offset  int32 `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

// ChannelState is the connection state of one open conversation.
type ChannelState struct {
	ConversationID string `json:"conversationId"`
	State          string `json:"state"`
}

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile       string         `json:"profile"`
	GatewayURL    string         `json:"gatewayUrl"`
	GatewayOK     bool           `json:"gatewayOk"`
	UptimeMs      int64          `json:"uptimeMs"`
	Channels      []ChannelState `json:"channels"`
	ParkedStatus  int32          `json:"parkedStatus"`
	DroppedEvents uint64         `json:"droppedEvents"`
}

type ListSessionsRequest struct {
	Page     int32 `json:"page"`
	PageSize int32 `json:"pageSize"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	PageInfo PageInfo  `json:"pageInfo"`
	// Error is set when the registry could not be read; Sessions is then empty.
	Error string `json:"error,omitempty"`
}

type OpenConversationRequest struct {
	// ConversationID may be empty to start a new widget conversation.
	ConversationID string `json:"conversationId"`
	// Channel overrides the channel derived from the id.
	Channel string `json:"channel,omitempty"`
}

type OpenConversationResponse struct {
	ConversationID string    `json:"conversationId"`
	Channel        string    `json:"channel"`
	State          string    `json:"state"`
	Messages       []Message `json:"messages"`
	// RefreshError reports a failed initial history load; the conversation is open regardless.
	RefreshError string `json:"refreshError,omitempty"`
}

type CloseConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type CloseConversationResponse struct{}

type GetMessagesRequest struct {
	ConversationID string `json:"conversationId"`
}

type GetMessagesResponse struct {
	ConversationID string    `json:"conversationId"`
	Version        uint64    `json:"version"`
	Messages       []Message `json:"messages"`
}

type SendTextRequest struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	MediaRef       string `json:"mediaRef,omitempty"`
}

type SendTextResponse struct {
	Message Message `json:"message"`
}

type RetryMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type RetryMessageResponse struct {
	Message Message `json:"message"`
}

type LoadOlderRequest struct {
	ConversationID string `json:"conversationId"`
}

type LoadOlderResponse struct {
	Added   int32 `json:"added"`
	HasMore bool  `json:"hasMore"`
}

type RefreshConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type RefreshConversationResponse struct {
	Added   int32 `json:"added"`
	Refined int32 `json:"refined"`
}

type WatchConversationRequest struct {
	// ConversationID filters events; empty watches every open conversation.
	ConversationID string `json:"conversationId,omitempty"`
}

// Event kinds carried by ConversationEvent.
const (
	EventViewChanged  = "view_changed"
	EventStateChanged = "state_changed"
	EventSendFailed   = "send_failed"
)

// ConversationEvent is streamed by WatchConversation.
type ConversationEvent struct {
	EventID          string `json:"eventId"`
	Kind             string `json:"kind"`
	ConversationID   string `json:"conversationId"`
	OccurredAtUnixMs int64  `json:"occurredAtUnixMs"`

	// view_changed
	Reason     string `json:"reason,omitempty"`
	Version    uint64 `json:"version,omitempty"`
	Added      int32  `json:"added,omitempty"`
	Refined    int32  `json:"refined,omitempty"`
	AutoScroll bool   `json:"autoScroll,omitempty"`

	// state_changed
	State string `json:"state,omitempty"`

	// send_failed
	LocalID string `json:"localId,omitempty"`
	Error   string `json:"error,omitempty"`
}
