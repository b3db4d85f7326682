package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/matheus3301/convsync/internal/convo"
)

// fakeHistory serves a fixed history, newest-first windows.
type fakeHistory struct {
	messages []convo.Message // ascending by SentAt
	calls    []int           // offsets requested
	err      error
}

func (f *fakeHistory) FetchHistory(_ context.Context, _ string, limit, offset int) (convo.Page[convo.Message], error) {
	f.calls = append(f.calls, offset)
	if f.err != nil {
		return convo.Page[convo.Message]{}, f.err
	}
	total := len(f.messages)
	end := total - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return convo.NewPage(f.messages[start:end], total, limit, offset), nil
}

func history(n int) []convo.Message {
	msgs := make([]convo.Message, n)
	for i := range msgs {
		msgs[i] = inbound(fmt.Sprintf("m%02d", i), fmt.Sprintf("msg %d", i), int64(1000*(i+1)))
	}
	return msgs
}

func TestRefreshNowMergesNewestWindow(t *testing.T) {
	e := testEngine(t)
	src := &fakeHistory{messages: history(25)}
	r := NewRefetcher(e, src, 0, 10, nil)

	res, err := r.RefreshNow(context.Background(), conv)
	if err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}
	if res.Added != 10 || !res.AutoScroll {
		t.Errorf("result = %+v, want 10 added with auto-scroll", res)
	}
	msgs := snapshot(t, e)
	if msgs[0].ID != "m15" || msgs[9].ID != "m24" {
		t.Errorf("window = %s..%s, want m15..m24", msgs[0].ID, msgs[9].ID)
	}
}

func TestLoadOlderPagesUntilExhausted(t *testing.T) {
	e := testEngine(t)
	src := &fakeHistory{messages: history(25)}
	r := NewRefetcher(e, src, 0, 10, nil)
	ctx := context.Background()

	if _, err := r.RefreshNow(ctx, conv); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	res, more, err := r.LoadOlder(ctx, conv)
	if err != nil {
		t.Fatalf("LoadOlder() error = %v", err)
	}
	if !more || res.Added != 10 || !res.Prepended || res.AutoScroll {
		t.Errorf("first older page = %+v more=%v", res, more)
	}

	res, more, err = r.LoadOlder(ctx, conv)
	if err != nil {
		t.Fatalf("LoadOlder() error = %v", err)
	}
	if more || res.Added != 5 {
		t.Errorf("last older page = %+v more=%v, want 5 added and no more", res, more)
	}

	calls := len(src.calls)
	_, more, _ = r.LoadOlder(ctx, conv)
	if more || len(src.calls) != calls {
		t.Errorf("exhausted history fetched again: calls=%v", src.calls)
	}

	msgs := snapshot(t, e)
	if len(msgs) != 25 || msgs[0].ID != "m00" || msgs[24].ID != "m24" {
		t.Errorf("final view has %d entries, want full ordered history", len(msgs))
	}
}

func TestLoadOlderWithoutRefreshLoadsNewestFirst(t *testing.T) {
	e := testEngine(t)
	src := &fakeHistory{messages: history(15)}
	r := NewRefetcher(e, src, 0, 10, nil)

	_, more, err := r.LoadOlder(context.Background(), conv)
	if err != nil {
		t.Fatalf("LoadOlder() error = %v", err)
	}
	if more {
		t.Error("more = true after reading all 15 messages")
	}
	if got := fmt.Sprint(src.calls); got != "[0 10]" {
		t.Errorf("offsets = %s, want [0 10]", got)
	}
}

func TestRefreshErrorLeavesViewUntouched(t *testing.T) {
	e := testEngine(t)
	e.Merge(conv, SourceTransport, []convo.Message{inbound("m1", "hi", 1000)})
	src := &fakeHistory{err: errors.New("gateway down")}
	r := NewRefetcher(e, src, 0, 10, nil)

	if _, err := r.RefreshNow(context.Background(), conv); err == nil {
		t.Fatal("RefreshNow() expected error")
	}
	if got := len(snapshot(t, e)); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}
