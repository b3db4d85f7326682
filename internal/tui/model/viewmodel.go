package model

import (
	"context"
	"errors"
	"io"
	"sync"

	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	"github.com/matheus3301/convsync/internal/tui/client"
)

// ErrNoActiveConversation is returned by thread operations before a
// conversation was opened.
var ErrNoActiveConversation = errors.New("no conversation open")

// ViewModel caches daemon state for the views. It never reorders or merges
// messages itself: the thread is always the daemon's latest snapshot.
type ViewModel struct {
	mu sync.RWMutex

	client   *client.Client
	status   *convsyncv1.GetStatusResponse
	sessions []convsyncv1.Session
	page     convsyncv1.PageInfo
	pageNum  int32
	listErr  string

	active   string
	channel  string
	state    string
	messages []convsyncv1.Message
	version  uint64
	hasMore  bool
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c, pageNum: 1, hasMore: true}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Daemon.GetStatus(ctx, &convsyncv1.GetStatusRequest{})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	for _, ch := range resp.Channels {
		if ch.ConversationID == vm.active {
			vm.state = ch.State
		}
	}
	vm.mu.Unlock()
	return nil
}

// LoadSessions fetches a page of the session registry. A registry failure is
// kept as ListError and is not returned as an error.
func (vm *ViewModel) LoadSessions(ctx context.Context, page int32) error {
	if page < 1 {
		page = 1
	}
	resp, err := vm.client.Conversations.ListSessions(ctx, &convsyncv1.ListSessionsRequest{Page: page})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.sessions = resp.Sessions
	vm.page = resp.PageInfo
	vm.pageNum = page
	vm.listErr = resp.Error
	vm.mu.Unlock()
	return nil
}

// NextPage loads the following registry page when there is one.
func (vm *ViewModel) NextPage(ctx context.Context) error {
	vm.mu.RLock()
	more, page := vm.page.HasMore, vm.pageNum
	vm.mu.RUnlock()
	if !more {
		return nil
	}
	return vm.LoadSessions(ctx, page+1)
}

// PrevPage loads the preceding registry page.
func (vm *ViewModel) PrevPage(ctx context.Context) error {
	vm.mu.RLock()
	page := vm.pageNum
	vm.mu.RUnlock()
	if page <= 1 {
		return nil
	}
	return vm.LoadSessions(ctx, page-1)
}

// Open opens a conversation in the daemon and makes it the active thread.
// An empty id starts a new widget conversation.
func (vm *ViewModel) Open(ctx context.Context, conversationID string) error {
	resp, err := vm.client.Conversations.OpenConversation(ctx, &convsyncv1.OpenConversationRequest{ConversationID: conversationID})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = resp.ConversationID
	vm.channel = resp.Channel
	vm.state = resp.State
	vm.messages = resp.Messages
	vm.version = 0
	vm.hasMore = true
	vm.mu.Unlock()
	if resp.RefreshError != "" {
		return errors.New("history unavailable: " + resp.RefreshError)
	}
	return nil
}

// Close closes the active conversation in the daemon.
func (vm *ViewModel) Close(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return ErrNoActiveConversation
	}
	if _, err := vm.client.Conversations.CloseConversation(ctx, &convsyncv1.CloseConversationRequest{ConversationID: id}); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active, vm.channel, vm.state = "", "", ""
	vm.messages = nil
	vm.mu.Unlock()
	return nil
}

// LoadMessages replaces the thread with the daemon's current snapshot. Older
// snapshots than the one already shown are ignored.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return ErrNoActiveConversation
	}
	resp, err := vm.client.Conversations.GetMessages(ctx, &convsyncv1.GetMessagesRequest{ConversationID: id})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active == id && resp.Version >= vm.version {
		vm.messages = resp.Messages
		vm.version = resp.Version
	}
	vm.mu.Unlock()
	return nil
}

// Send sends text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	id := vm.Active()
	if id == "" {
		return ErrNoActiveConversation
	}
	_, err := vm.client.Conversations.SendText(ctx, &convsyncv1.SendTextRequest{ConversationID: id, Content: text})
	return err
}

// RetryLastFailed resends the newest failed outbound message. It reports
// false when there is nothing to retry.
func (vm *ViewModel) RetryLastFailed(ctx context.Context) (bool, error) {
	id := vm.Active()
	if id == "" {
		return false, ErrNoActiveConversation
	}
	msgID := vm.LastFailed()
	if msgID == "" {
		return false, nil
	}
	_, err := vm.client.Conversations.RetryMessage(ctx, &convsyncv1.RetryMessageRequest{ConversationID: id, MessageID: msgID})
	return err == nil, err
}

// LastFailed returns the id of the newest failed outbound message.
func (vm *ViewModel) LastFailed() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		m := vm.messages[i]
		if m.Direction == "outbound" && m.Status == "failed" {
			return m.ID
		}
	}
	return ""
}

// LoadOlder pages older history into the active thread.
func (vm *ViewModel) LoadOlder(ctx context.Context) (bool, error) {
	id := vm.Active()
	if id == "" {
		return false, ErrNoActiveConversation
	}
	resp, err := vm.client.Conversations.LoadOlder(ctx, &convsyncv1.LoadOlderRequest{ConversationID: id})
	if err != nil {
		return false, err
	}
	vm.mu.Lock()
	vm.hasMore = resp.HasMore
	vm.mu.Unlock()
	return resp.HasMore, nil
}

// Refresh asks the daemon to refetch the active conversation.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	id := vm.Active()
	if id == "" {
		return ErrNoActiveConversation
	}
	_, err := vm.client.Conversations.RefreshConversation(ctx, &convsyncv1.RefreshConversationRequest{ConversationID: id})
	return err
}

// Watch streams daemon events until ctx ends or the stream fails. State
// changes of the active conversation are applied before onEvent runs.
func (vm *ViewModel) Watch(ctx context.Context, onEvent func(convsyncv1.ConversationEvent)) error {
	stream, err := vm.client.Conversations.WatchConversation(ctx, &convsyncv1.WatchConversationRequest{})
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if evt.Kind == convsyncv1.EventStateChanged {
			vm.mu.Lock()
			if evt.ConversationID == vm.active {
				vm.state = evt.State
			}
			vm.mu.Unlock()
		}
		onEvent(*evt)
	}
}

// Active returns the active conversation id.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Thread returns the active conversation, its connection state and messages.
func (vm *ViewModel) Thread() (id, channel, state string, msgs []convsyncv1.Message) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active, vm.channel, vm.state, vm.messages
}

// HasMore reports whether older history may remain for the active thread.
func (vm *ViewModel) HasMore() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.hasMore
}

// Sessions returns the current registry page and the error it carried.
func (vm *ViewModel) Sessions() ([]convsyncv1.Session, convsyncv1.PageInfo, string) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sessions, vm.page, vm.listErr
}

// Session returns the cached registry entry for id.
func (vm *ViewModel) Session(id string) (convsyncv1.Session, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, s := range vm.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return convsyncv1.Session{}, false
}

// Status returns the last daemon status.
func (vm *ViewModel) Status() *convsyncv1.GetStatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// CurrentPage returns the 1-based registry page last loaded.
func (vm *ViewModel) CurrentPage() int32 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.pageNum
}
