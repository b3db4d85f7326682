// Package registry lists active conversations with bounded pagination and
// derives creation times from conversation identifiers.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/convsync/internal/convo"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var sessionIDPattern = regexp.MustCompile(`^session_(\d{10,16})(?:_[A-Za-z0-9]+)?$`)

// Lister serves a window of active conversations, newest activity first,
// together with the total number of active conversations.
type Lister interface {
	ListConversations(ctx context.Context, limit, offset int) ([]convo.Conversation, int, error)
}

// Result is the outcome of a listing. When Failed is set the page is empty
// and must not be read as "no active sessions".
type Result struct {
	Page   convo.Page[convo.Conversation]
	Failed bool
	Err    error
}

// Registry lists active conversations through a Lister.
type Registry struct {
	lister Lister
	logger *zap.Logger
}

// New creates a registry backed by lister.
func New(lister Lister, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{lister: lister, logger: logger}
}

// Bounds normalizes 1-indexed page and pageSize values and returns the
// effective limit and offset.
func Bounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// List returns the requested page of active conversations.
func (r *Registry) List(ctx context.Context, page, pageSize int) Result {
	limit, offset := Bounds(page, pageSize)

	items, total, err := r.lister.ListConversations(ctx, limit, offset)
	if err != nil {
		r.logger.Warn("list active sessions failed",
			zap.Int("limit", limit), zap.Int("offset", offset), zap.Error(err))
		return Result{
			Page:   convo.EmptyPage[convo.Conversation](limit, offset),
			Failed: true,
			Err:    fmt.Errorf("list sessions: %w", err),
		}
	}
	for i := range items {
		if items[i].CreatedAt == 0 {
			if ts, ok := CreatedAt(items[i].ID); ok {
				items[i].CreatedAt = ts.UnixMilli()
			}
		}
	}
	return Result{Page: convo.NewPage(items, total, limit, offset)}
}

// CreatedAt parses the creation time embedded in a session_<epoch-ms>
// identifier. Identifiers of any other shape, such as phone numbers, report false.
func CreatedAt(conversationID string) (time.Time, bool) {
	m := sessionIDPattern.FindStringSubmatch(conversationID)
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// NewSessionID builds a chat session identifier for the given time. A non-empty
// suffix disambiguates sessions created in the same millisecond.
func NewSessionID(now time.Time, suffix string) string {
	id := "session_" + strconv.FormatInt(now.UnixMilli(), 10)
	if suffix != "" {
		id += "_" + suffix
	}
	return id
}

// ChannelOf infers a conversation's channel from its identifier.
func ChannelOf(conversationID string) convo.Channel {
	if sessionIDPattern.MatchString(conversationID) {
		return convo.ChannelChat
	}
	return convo.ChannelWhatsApp
}

// NormalizePhone keeps the digits of a phone number. WhatsApp conversations
// are keyed by the bare number.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeID returns the canonical form of a conversation identifier: chat
// session ids are only trimmed, anything else is treated as a phone number.
func NormalizeID(conversationID string) string {
	id := strings.TrimSpace(conversationID)
	if id == "" || sessionIDPattern.MatchString(id) {
		return id
	}
	return NormalizePhone(id)
}
