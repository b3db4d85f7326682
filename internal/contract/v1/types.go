package v1

// WelcomePayload is sent once per connect.
type WelcomePayload struct {
	ConversationID string `json:"conversationId"`
}

type UserInfoPayload struct {
	FullName     string `json:"fullName"`
	EmailAddress string `json:"emailAddress"`
	MobileNumber string `json:"mobileNumber"`
}

type UserInfoAckPayload struct {
	Updated bool `json:"updated"`
}

// ChatPayload is the content event. Timestamp is unix milliseconds; Status is
// the message status name and is empty for inbound messages.
type ChatPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	ClientMsgID    string `json:"clientMsgId,omitempty"`
	Message        string `json:"message"`
	Sender         string `json:"sender,omitempty"`
	Direction      string `json:"direction,omitempty"`
	Timestamp      int64  `json:"timestamp"`
	MediaRef       string `json:"mediaRef,omitempty"`
	Status         string `json:"status,omitempty"`
}

type StatusUpdatePayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
	Status         string `json:"status"`
}

type ActiveSessionsRequest struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type ActiveSessionsResponse struct {
	Sessions   []Session  `json:"sessions"`
	Pagination Pagination `json:"pagination"`
	Error      string     `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session is a conversation summary. Timestamps are unix milliseconds.
type Session struct {
	ConversationID     string `json:"conversationId"`
	Channel            string `json:"channel"`
	CreatedAt          int64  `json:"createdAt,omitempty"`
	LastMessageAt      int64  `json:"lastMessageAt,omitempty"`
	LastMessagePreview string `json:"lastMessagePreview,omitempty"`
	FullName           string `json:"fullName,omitempty"`
	EmailAddress       string `json:"emailAddress,omitempty"`
	MobileNumber       string `json:"mobileNumber,omitempty"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}
