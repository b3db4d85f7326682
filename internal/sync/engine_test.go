package sync

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/convo"
)

const conv = "session_1700000000000"

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(DefaultPolicy(), nil, nil)
}

func ms(n int64) time.Time {
	return time.UnixMilli(n)
}

func inbound(id, content string, at int64) convo.Message {
	return convo.Message{ID: id, ConversationID: conv, Direction: convo.Inbound, Content: content, SentAt: at}
}

func outbound(id, content string, at int64, st convo.Status) convo.Message {
	return convo.Message{ID: id, ConversationID: conv, Direction: convo.Outbound, Content: content, SentAt: at, Status: st}
}

func snapshot(t *testing.T, e *Engine) []convo.Message {
	t.Helper()
	snap, ok := e.Snapshot(conv)
	if !ok {
		t.Fatalf("no view for %s", conv)
	}
	return snap.Messages
}

func TestInboundRedeliveryIsIdempotent(t *testing.T) {
	e := testEngine(t)
	msg := inbound("m1", "hi", 1000)

	e.Merge(conv, SourceTransport, []convo.Message{msg})
	res := e.Merge(conv, SourceStore, []convo.Message{msg})

	if res.Dropped != 1 || res.Added != 0 {
		t.Errorf("second delivery result = %+v, want one drop", res)
	}
	if got := len(snapshot(t, e)); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}

func TestInboundNotDedupedByContent(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{
		inbound("m1", "ok", 1000),
		inbound("m2", "ok", 1100),
	})
	if got := len(snapshot(t, e)); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestOptimisticCorrelation(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "X", "", ms(10_000))

	res := e.Merge(conv, SourceTransport, []convo.Message{outbound("m42", "X", 12_000, convo.StatusSent)})

	if res.Refined != 1 || res.Added != 0 {
		t.Fatalf("merge result = %+v, want one refinement", res)
	}
	msgs := snapshot(t, e)
	if len(msgs) != 1 {
		t.Fatalf("entries = %d, want 1", len(msgs))
	}
	if msgs[0].ID != "m42" || msgs[0].Provisional {
		t.Errorf("id = %q provisional=%v, want canonical m42", msgs[0].ID, msgs[0].Provisional)
	}
	if msgs[0].LocalID != local.ID {
		t.Errorf("local id = %q, want %q", msgs[0].LocalID, local.ID)
	}
	if msgs[0].Status != convo.StatusSent {
		t.Errorf("status = %s, want sent", msgs[0].Status)
	}
	if msgs[0].SentAt != 10_000 {
		t.Errorf("sentAt = %d, want optimistic 10000", msgs[0].SentAt)
	}
}

func TestCorrelationWindowBoundary(t *testing.T) {
	window := CorrelationWindow.Milliseconds()
	tests := []struct {
		name        string
		offset      int64
		wantEntries int
	}{
		{"inside window", window - 1, 1},
		{"exactly window", window, 2},
		{"one past window", window + 1, 2},
		{"earlier inside window", -(window - 1), 1},
		{"earlier past window", -(window + 1), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(t)
			e.AppendOptimistic(conv, "X", "", ms(100_000))
			e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "X", 100_000+tt.offset, convo.StatusSent)})

			if got := len(snapshot(t, e)); got != tt.wantEntries {
				t.Errorf("entries = %d, want %d", got, tt.wantEntries)
			}
		})
	}
}

func TestCorrelationRequiresIdenticalContent(t *testing.T) {
	e := testEngine(t)
	e.AppendOptimistic(conv, "Hello", "", ms(1000))
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "hello", 1500, convo.StatusSent)})

	if got := len(snapshot(t, e)); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestOrderingStability(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{
		inbound("c", "third", 3000),
		inbound("d", "fourth-a", 4000),
		inbound("e", "fourth-b", 4000),
	})
	res := e.LoadOlder(conv, []convo.Message{
		inbound("b", "second", 2000),
		inbound("a", "first", 1000),
		inbound("f", "fourth-c", 4000),
	})

	if !res.Prepended || res.AutoScroll {
		t.Errorf("load older result = %+v, want prepended without auto-scroll", res)
	}
	var ids []string
	for _, m := range snapshot(t, e) {
		ids = append(ids, m.ID)
	}
	if got, want := strings.Join(ids, ","), "a,b,c,d,e,f"; got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestAutoScrollOnlyForTailAppends(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{inbound("m1", "a", 5000)})

	tail := e.Merge(conv, SourceTransport, []convo.Message{inbound("m2", "b", 6000)})
	if tail.Prepended || !tail.AutoScroll {
		t.Errorf("tail append = %+v, want auto-scroll", tail)
	}

	head := e.Merge(conv, SourceStore, []convo.Message{inbound("m0", "z", 1000)})
	if !head.Prepended || head.AutoScroll {
		t.Errorf("head insert = %+v, want prepended without auto-scroll", head)
	}

	dup := e.Merge(conv, SourceTransport, []convo.Message{inbound("m2", "b", 6000)})
	if dup.AutoScroll {
		t.Errorf("duplicate delivery requested auto-scroll: %+v", dup)
	}

	older := e.LoadOlder(conv, []convo.Message{inbound("m9", "late", 9000)})
	if older.AutoScroll {
		t.Errorf("LoadOlder requested auto-scroll: %+v", older)
	}
}

func TestSendConfirmScenario(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	if local.Status != convo.StatusPending || !local.Provisional {
		t.Fatalf("optimistic entry = %+v, want provisional pending", local)
	}

	e.Merge(conv, SourceTransport, []convo.Message{outbound("m42", "Hello", 1800, convo.StatusSent)})
	msgs := snapshot(t, e)
	if len(msgs) != 1 || msgs[0].ID != "m42" || msgs[0].Status != convo.StatusSent {
		t.Fatalf("after confirmation = %+v, want one m42/sent", msgs)
	}

	if !e.ApplyStatus("m42", convo.StatusDelivered) {
		t.Fatal("delivered update not applied")
	}
	if e.ApplyStatus("m42", convo.StatusSent) {
		t.Error("stray sent update reported as applied")
	}

	msgs = snapshot(t, e)
	if len(msgs) != 1 || msgs[0].Status != convo.StatusDelivered {
		t.Errorf("final = %+v, want one delivered entry", msgs)
	}
}

func TestSendFailureScenario(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{inbound("m1", "hey", 500)})
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))

	if !e.ResolveSend(conv, local.LocalID, SendOutcome{Success: false, Err: "rate limited"}) {
		t.Fatal("ResolveSend did not find the optimistic entry")
	}

	msgs := snapshot(t, e)
	if len(msgs) != 2 {
		t.Fatalf("entries = %d, want 2 (nothing removed)", len(msgs))
	}
	if msgs[1].Status != convo.StatusFailed {
		t.Errorf("status = %s, want failed", msgs[1].Status)
	}
}

func TestFailedIsTerminalButAdoptsLateID(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: false, Err: "timeout"})

	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m7"})
	e.ApplyStatus("m7", convo.StatusRead)

	msgs := snapshot(t, e)
	if len(msgs) != 1 {
		t.Fatalf("entries = %d, want 1", len(msgs))
	}
	if msgs[0].ID != "m7" {
		t.Errorf("id = %q, want m7", msgs[0].ID)
	}
	if msgs[0].Status != convo.StatusFailed {
		t.Errorf("status = %s, want failed", msgs[0].Status)
	}
}

func TestResolveSendSuccess(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))

	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m1"})

	got, ok := e.Message(conv, "m1")
	if !ok {
		t.Fatal("message m1 not found")
	}
	if got.Status != convo.StatusSent || got.LocalID != local.LocalID {
		t.Errorf("message = %+v, want sent with local id kept", got)
	}
}

func TestResolveSendAfterEchoKeepsHigherStatus(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "Hello", 1200, convo.StatusDelivered)})

	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m1"})

	msgs := snapshot(t, e)
	if len(msgs) != 1 || msgs[0].Status != convo.StatusDelivered {
		t.Errorf("final = %+v, want one delivered entry", msgs)
	}
}

func TestResolveSendFoldsDuplicateCanonical(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	// A refetch saw the stored row before the send result, with a server
	// clock far from the client clock.
	e.Merge(conv, SourceStore, []convo.Message{outbound("m1", "Hello", 9000, convo.StatusDelivered)})
	if got := len(snapshot(t, e)); got != 2 {
		t.Fatalf("entries before resolve = %d, want 2", got)
	}

	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m1"})

	msgs := snapshot(t, e)
	if len(msgs) != 1 {
		t.Fatalf("entries = %d, want 1", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Status != convo.StatusDelivered {
		t.Errorf("entry = %+v, want m1 delivered", msgs[0])
	}
}

func TestStatusParkedUntilIDAdopted(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))

	if e.ApplyStatus("m5", convo.StatusDelivered) {
		t.Fatal("status for unknown id reported as applied")
	}
	if e.ParkedCount() != 1 {
		t.Fatalf("parked = %d, want 1", e.ParkedCount())
	}

	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m5"})

	got, _ := e.Message(conv, "m5")
	if got.Status != convo.StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
	if e.ParkedCount() != 0 {
		t.Errorf("parked = %d, want 0", e.ParkedCount())
	}
}

func TestParkedStatusBounded(t *testing.T) {
	e := NewEngine(Policy{MergeRapidDuplicates: true, MaxParkedStatus: 2}, nil, nil)
	e.ApplyStatus("a", convo.StatusSent)
	e.ApplyStatus("b", convo.StatusSent)
	e.ApplyStatus("c", convo.StatusSent)

	if got := e.ParkedCount(); got != 2 {
		t.Errorf("parked = %d, want 2", got)
	}
}

func TestStatusUpdateIgnoredForInbound(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{inbound("m1", "hi", 1000)})

	if e.ApplyStatus("m1", convo.StatusRead) {
		t.Error("status applied to inbound message")
	}
}

func TestRapidDuplicatesPreferOptimisticEntries(t *testing.T) {
	e := testEngine(t)
	e.AppendOptimistic(conv, "ok", "", ms(1000))
	e.AppendOptimistic(conv, "ok", "", ms(1300))

	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "ok", 1100, convo.StatusSent)})
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m2", "ok", 1400, convo.StatusSent)})

	msgs := snapshot(t, e)
	if len(msgs) != 2 {
		t.Fatalf("entries = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("ids = %s,%s, want m1,m2", msgs[0].ID, msgs[1].ID)
	}
}

// Two distinct confirmed messages with the same content inside the window
// collapse under the default policy. This is an accepted false merge.
func TestRapidDuplicatePolicy(t *testing.T) {
	tests := []struct {
		name        string
		merge       bool
		wantEntries int
	}{
		{"merge rapid duplicates", true, 1},
		{"keep rapid duplicates", false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.MergeRapidDuplicates = tt.merge
			e := NewEngine(p, nil, nil)

			e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "ok", 1000, convo.StatusSent)})
			e.Merge(conv, SourceTransport, []convo.Message{outbound("m2", "ok", 2000, convo.StatusSent)})

			msgs := snapshot(t, e)
			if len(msgs) != tt.wantEntries {
				t.Fatalf("entries = %d, want %d", len(msgs), tt.wantEntries)
			}
			if tt.merge && msgs[0].ID != "m2" {
				t.Errorf("merged id = %q, want latest confirmation m2", msgs[0].ID)
			}
		})
	}
}

// After a rapid-duplicate merge the entry answers to both ids, so a store
// batch carrying both settles without further changes.
func TestMergedDuplicateRefetchIsStable(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "ok", 1000, convo.StatusSent)})
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m2", "ok", 2000, convo.StatusSent)})

	batch := []convo.Message{
		outbound("m1", "ok", 1000, convo.StatusSent),
		outbound("m2", "ok", 2000, convo.StatusSent),
	}
	e.Merge(conv, SourceStore, batch)
	before, _ := e.Snapshot(conv)

	res := e.Merge(conv, SourceStore, batch)
	if res.Changed() {
		t.Errorf("second refetch changed the view: %+v", res)
	}
	after, _ := e.Snapshot(conv)
	if after.Version != before.Version {
		t.Errorf("version = %d, want %d", after.Version, before.Version)
	}
	if len(after.Messages) != 1 || after.Messages[0].ID != "m2" {
		t.Fatalf("messages = %+v, want single m2", after.Messages)
	}

	if !e.ApplyStatus("m1", convo.StatusRead) {
		t.Fatal("status for displaced id m1 not applied")
	}
	if got := snapshot(t, e)[0].Status; got != convo.StatusRead {
		t.Errorf("status = %s, want read", got)
	}
}

func TestStoreRefetchConverges(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	e.Merge(conv, SourceTransport, []convo.Message{inbound("in1", "hey", 900)})
	e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true, CanonicalID: "m1"})

	batch := []convo.Message{
		inbound("in0", "older", 100),
		inbound("in1", "hey", 900),
		outbound("m1", "Hello", 1050, convo.StatusRead),
	}
	e.Merge(conv, SourceStore, batch)
	e.Merge(conv, SourceStore, batch)

	msgs := snapshot(t, e)
	if len(msgs) != 3 {
		t.Fatalf("entries = %d, want 3", len(msgs))
	}
	if msgs[2].ID != "m1" || msgs[2].Status != convo.StatusRead {
		t.Errorf("outbound = %+v, want m1 read", msgs[2])
	}
}

func TestOutboundWithoutStatusDefaultsPending(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "from another tab", 1000, convo.StatusNone)})

	msgs := snapshot(t, e)
	if msgs[0].Status != convo.StatusPending {
		t.Errorf("status = %s, want pending", msgs[0].Status)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{inbound("m1", "hi", 1000)})

	msgs := snapshot(t, e)
	msgs[0].Content = "tampered"

	if got := snapshot(t, e)[0].Content; got != "hi" {
		t.Errorf("content = %q, engine list was mutated through snapshot", got)
	}
}

func TestForget(t *testing.T) {
	e := testEngine(t)
	local := e.AppendOptimistic(conv, "Hello", "", ms(1000))
	e.Forget(conv)

	if _, ok := e.Snapshot(conv); ok {
		t.Error("view still present after Forget")
	}
	if e.ResolveSend(conv, local.LocalID, SendOutcome{Success: true}) {
		t.Error("ResolveSend succeeded on forgotten view")
	}
	if len(e.Conversations()) != 0 {
		t.Errorf("conversations = %v, want none", e.Conversations())
	}
}

func TestViewChangedPublished(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.KindViewChanged, 10)
	defer unsub()
	e := NewEngine(DefaultPolicy(), b, nil)

	e.AppendOptimistic(conv, "Hello", "", ms(1000))

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(ViewChange)
		if !ok {
			t.Fatalf("payload type %T, want ViewChange", evt.Payload)
		}
		if change.ConversationID != conv || change.Result.Added != 1 || !change.Result.AutoScroll {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for view.changed")
	}

	// No-op merges stay silent.
	e.Merge(conv, SourceTransport, nil)
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConversationsIsolated(t *testing.T) {
	e := testEngine(t)
	e.AppendOptimistic("5511999990000", "X", "", ms(1000))
	e.Merge(conv, SourceTransport, []convo.Message{outbound("m1", "X", 1200, convo.StatusSent)})

	if got := len(snapshot(t, e)); got != 1 {
		t.Errorf("entries in %s = %d, want 1", conv, got)
	}
	other, _ := e.Snapshot("5511999990000")
	if len(other.Messages) != 1 || !other.Messages[0].Provisional {
		t.Errorf("other conversation = %+v, want untouched optimistic entry", other.Messages)
	}
}
