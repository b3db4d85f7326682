// Package sync owns the operator's canonical message list for every open
// conversation. All mutations go through Engine, which merges optimistic
// local entries, transport events and store refetches into one ordered,
// deduplicated view per conversation.
package sync

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
	"go.uber.org/zap"
)

// CorrelationWindow is the tolerance used to pair an optimistic outbound entry
// with its later confirmation. The comparison is strict: a confirmation exactly
// CorrelationWindow away is a distinct message.
const CorrelationWindow = 5000 * time.Millisecond

const localIDPrefix = "local-"

// NewLocalID returns a fresh id for an optimistic entry.
func NewLocalID() string {
	return localIDPrefix + uuid.NewString()
}

// Source names where a merged batch came from.
type Source string

const (
	SourceLocal     Source = "local"
	SourceTransport Source = "transport"
	SourceStore     Source = "store"
)

// Policy tunes merge decisions that are product choices rather than invariants.
type Policy struct {
	// MergeRapidDuplicates lets a confirmation correlate with an entry that
	// already carries a different canonical id. Two distinct messages with the
	// same content sent within CorrelationWindow then collapse into one.
	MergeRapidDuplicates bool
	// MaxParkedStatus bounds status updates held for ids no entry carries yet.
	MaxParkedStatus int
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MergeRapidDuplicates: true,
		MaxParkedStatus:      1024,
	}
}

// MergeResult summarizes what a merge did to a view.
type MergeResult struct {
	Added   int
	Refined int
	Dropped int
	// Prepended is set when the merge lowered the view's minimum SentAt.
	Prepended bool
	// AutoScroll tells the presentation layer to follow the tail.
	AutoScroll bool
}

// Changed reports whether the view was modified.
func (r MergeResult) Changed() bool {
	return r.Added > 0 || r.Refined > 0
}

// SendOutcome is the resolution of a send issued for an optimistic entry.
type SendOutcome struct {
	Success     bool
	CanonicalID string
	Err         string
}

// Snapshot is a copy of one conversation's canonical list.
type Snapshot struct {
	ConversationID string
	Messages       []convo.Message
	Version        uint64
}

// ViewChange is the payload of bus.KindViewChanged.
type ViewChange struct {
	ConversationID string
	Reason         string
	Result         MergeResult
	Version        uint64
}

type view struct {
	id       string
	messages []convo.Message
	version  uint64
	// aliases maps canonical ids an entry gave up when it adopted another
	// one to the id it holds now.
	aliases map[string]string
}

// Engine is the single owner of every conversation's canonical list.
// Merges run to completion under one mutex and never perform I/O.
type Engine struct {
	mu     sync.Mutex
	views  map[string]*view
	owner  map[string]string // canonical id -> conversation id
	parked map[string]convo.Status
	order  []string // parked ids, oldest first

	policy Policy
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine. b may be nil.
func NewEngine(policy Policy, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxParkedStatus <= 0 {
		policy.MaxParkedStatus = DefaultPolicy().MaxParkedStatus
	}
	return &Engine{
		views:  make(map[string]*view),
		owner:  make(map[string]string),
		parked: make(map[string]convo.Status),
		policy: policy,
		bus:    b,
		logger: logger,
	}
}

// Policy returns the engine's merge policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Open ensures a view exists for the conversation.
func (e *Engine) Open(conversationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewLocked(conversationID)
}

// Merge folds a batch from any source into the conversation's view.
func (e *Engine) Merge(conversationID string, source Source, batch []convo.Message) MergeResult {
	return e.merge(conversationID, source, batch, false)
}

// LoadOlder merges a page of older history. It never requests auto-scroll.
func (e *Engine) LoadOlder(conversationID string, batch []convo.Message) MergeResult {
	return e.merge(conversationID, SourceStore, batch, true)
}

func (e *Engine) merge(conversationID string, source Source, batch []convo.Message, older bool) MergeResult {
	e.mu.Lock()
	v := e.viewLocked(conversationID)
	res := e.mergeLocked(v, batch)
	if older {
		res.AutoScroll = false
	}
	change := e.commitLocked(v, string(source), res)
	e.mu.Unlock()

	if res.Dropped > 0 {
		e.logger.Debug("merge dropped duplicates",
			zap.String("conversation_id", conversationID),
			zap.String("source", string(source)),
			zap.Int("dropped", res.Dropped))
	}
	e.publish(change)
	return res
}

// AppendOptimistic adds a pending outbound entry for a message the operator
// just sent. It always creates a new entry.
func (e *Engine) AppendOptimistic(conversationID, content, mediaRef string, now time.Time) convo.Message {
	id := NewLocalID()
	msg := convo.Message{
		ID:             id,
		LocalID:        id,
		Provisional:    true,
		ConversationID: conversationID,
		Direction:      convo.Outbound,
		Content:        content,
		MediaRef:       mediaRef,
		SentAt:         now.UnixMilli(),
		Status:         convo.StatusPending,
	}

	e.mu.Lock()
	v := e.viewLocked(conversationID)
	oldMin, hadMin := v.minSentAt()
	v.messages = append(v.messages, msg)
	res := MergeResult{Added: 1}
	v.sort()
	res.Prepended = hadMin && msg.SentAt < oldMin
	res.AutoScroll = !res.Prepended
	change := e.commitLocked(v, string(SourceLocal), res)
	e.mu.Unlock()

	e.publish(change)
	return msg
}

// ResolveSend applies the outcome of a send to the entry created by
// AppendOptimistic. It reports false when the entry is gone.
func (e *Engine) ResolveSend(conversationID, localID string, out SendOutcome) bool {
	e.mu.Lock()
	v, ok := e.views[conversationID]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("send resolved for closed conversation",
			zap.String("conversation_id", conversationID),
			zap.String("local_id", localID))
		return false
	}
	idx := v.indexByLocalID(localID)
	if idx < 0 {
		e.mu.Unlock()
		return false
	}

	res := MergeResult{}
	if out.Success {
		changed := false
		if out.CanonicalID != "" {
			idx, changed = e.adoptLocked(v, idx, out.CanonicalID)
		}
		if e.advanceLocked(&v.messages[idx], convo.StatusSent) || changed {
			res.Refined = 1
		}
	} else if e.advanceLocked(&v.messages[idx], convo.StatusFailed) {
		res.Refined = 1
	}
	change := e.commitLocked(v, "send", res)
	e.mu.Unlock()

	e.publish(change)
	return true
}

// ApplyStatus advances the status of the entry holding messageID. Updates for
// ids no entry holds yet are parked and applied when an entry adopts the id.
func (e *Engine) ApplyStatus(messageID string, status convo.Status) bool {
	if messageID == "" || status == convo.StatusNone {
		return false
	}
	e.mu.Lock()
	convID, ok := e.owner[messageID]
	if !ok {
		e.parkLocked(messageID, status)
		e.mu.Unlock()
		return false
	}
	v := e.views[convID]
	idx := v.indexByID(messageID)
	if idx < 0 || v.messages[idx].Direction != convo.Outbound {
		e.mu.Unlock()
		return false
	}
	res := MergeResult{}
	if e.advanceLocked(&v.messages[idx], status) {
		res.Refined = 1
	}
	change := e.commitLocked(v, "status", res)
	e.mu.Unlock()

	e.publish(change)
	return res.Refined > 0
}

// Snapshot returns a copy of the conversation's list.
func (e *Engine) Snapshot(conversationID string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[conversationID]
	if !ok {
		return Snapshot{ConversationID: conversationID}, false
	}
	return Snapshot{
		ConversationID: conversationID,
		Messages:       slices.Clone(v.messages),
		Version:        v.version,
	}, true
}

// Message returns a copy of the entry with the given canonical or local id.
func (e *Engine) Message(conversationID, id string) (convo.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.views[conversationID]
	if !ok {
		return convo.Message{}, false
	}
	if idx := v.indexByID(id); idx >= 0 {
		return v.messages[idx], true
	}
	if idx := v.indexByLocalID(id); idx >= 0 {
		return v.messages[idx], true
	}
	return convo.Message{}, false
}

// Conversations lists the ids of all open views.
func (e *Engine) Conversations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.views))
	for id := range e.views {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Forget drops a conversation's view.
func (e *Engine) Forget(conversationID string) {
	e.mu.Lock()
	v, ok := e.views[conversationID]
	if ok {
		for _, m := range v.messages {
			if m.HasCanonicalID() {
				delete(e.owner, m.ID)
			}
		}
		for alias := range v.aliases {
			delete(e.owner, alias)
		}
		delete(e.views, conversationID)
	}
	e.mu.Unlock()
	if ok {
		e.logger.Debug("view forgotten", zap.String("conversation_id", conversationID))
	}
}

// ParkedCount returns how many status updates are waiting for their message.
func (e *Engine) ParkedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.parked)
}

func (e *Engine) viewLocked(conversationID string) *view {
	v, ok := e.views[conversationID]
	if !ok {
		v = &view{id: conversationID}
		e.views[conversationID] = v
	}
	return v
}

func (e *Engine) commitLocked(v *view, reason string, res MergeResult) *ViewChange {
	if !res.Changed() {
		return nil
	}
	v.version++
	return &ViewChange{
		ConversationID: v.id,
		Reason:         reason,
		Result:         res,
		Version:        v.version,
	}
}

func (e *Engine) publish(change *ViewChange) {
	if change == nil || e.bus == nil {
		return
	}
	e.bus.Emit(bus.KindViewChanged, *change)
}

func (e *Engine) advanceLocked(m *convo.Message, status convo.Status) bool {
	next, changed := convo.Advance(m.Status, status)
	if changed {
		m.Status = next
	}
	return changed
}

func (e *Engine) parkLocked(messageID string, status convo.Status) {
	if cur, ok := e.parked[messageID]; ok {
		e.parked[messageID], _ = convo.Advance(cur, status)
		return
	}
	if len(e.order) >= e.policy.MaxParkedStatus {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.parked, oldest)
	}
	e.parked[messageID] = status
	e.order = append(e.order, messageID)
}

// claimParkedLocked applies a parked status to the entry at idx, which has
// just adopted its canonical id.
func (e *Engine) claimParkedLocked(v *view, idx int) bool {
	id := v.messages[idx].ID
	status, ok := e.parked[id]
	if !ok {
		return false
	}
	delete(e.parked, id)
	if i := slices.Index(e.order, id); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	return e.advanceLocked(&v.messages[idx], status)
}

func (v *view) minSentAt() (int64, bool) {
	if len(v.messages) == 0 {
		return 0, false
	}
	// messages are kept sorted
	return v.messages[0].SentAt, true
}

func (v *view) sort() {
	slices.SortStableFunc(v.messages, func(a, b convo.Message) int {
		switch {
		case a.SentAt < b.SentAt:
			return -1
		case a.SentAt > b.SentAt:
			return 1
		default:
			return 0
		}
	})
}

// indexByID finds the entry holding id, directly or as an alias.
func (v *view) indexByID(id string) int {
	if idx := v.indexByCanonical(id); idx >= 0 {
		return idx
	}
	if cur, ok := v.aliases[id]; ok {
		return v.indexByCanonical(cur)
	}
	return -1
}

func (v *view) indexByCanonical(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(v.messages, func(m convo.Message) bool {
		return m.ID == id && !m.Provisional
	})
}

// alias records that oldID now resolves to newID.
func (v *view) alias(oldID, newID string) {
	if v.aliases == nil {
		v.aliases = make(map[string]string)
	}
	for k, cur := range v.aliases {
		if cur == oldID {
			v.aliases[k] = newID
		}
	}
	v.aliases[oldID] = newID
	delete(v.aliases, newID)
}

func (v *view) indexByLocalID(localID string) int {
	if localID == "" {
		return -1
	}
	return slices.IndexFunc(v.messages, func(m convo.Message) bool {
		return m.LocalID == localID
	})
}
