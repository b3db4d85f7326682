package convo

import "testing"

func TestAdvance(t *testing.T) {
	tests := []struct {
		name        string
		current     Status
		incoming    Status
		want        Status
		wantChanged bool
	}{
		{"pending to sent", StatusPending, StatusSent, StatusSent, true},
		{"pending to read", StatusPending, StatusRead, StatusRead, true},
		{"sent to delivered", StatusSent, StatusDelivered, StatusDelivered, true},
		{"delivered to read", StatusDelivered, StatusRead, StatusRead, true},
		{"read to sent is refused", StatusRead, StatusSent, StatusRead, false},
		{"delivered to pending is refused", StatusDelivered, StatusPending, StatusDelivered, false},
		{"same status", StatusSent, StatusSent, StatusSent, false},
		{"pending to failed", StatusPending, StatusFailed, StatusFailed, true},
		{"read to failed", StatusRead, StatusFailed, StatusFailed, true},
		{"failed stays failed on sent", StatusFailed, StatusSent, StatusFailed, false},
		{"failed stays failed on read", StatusFailed, StatusRead, StatusFailed, false},
		{"none incoming ignored", StatusSent, StatusNone, StatusSent, false},
		{"none current takes incoming", StatusNone, StatusSent, StatusSent, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := Advance(tt.current, tt.incoming)
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("Advance(%s, %s) = (%s, %v), want (%s, %v)",
					tt.current, tt.incoming, got, changed, tt.want, tt.wantChanged)
			}
		})
	}
}

// TestAdvanceMonotonic applies every event sequence of length 4 and checks the
// observed ranks never decrease.
func TestAdvanceMonotonic(t *testing.T) {
	all := []Status{StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed}
	var walk func(cur Status, depth int)
	walk = func(cur Status, depth int) {
		if depth == 0 {
			return
		}
		for _, in := range all {
			next, _ := Advance(cur, in)
			if cur == StatusFailed && next != StatusFailed {
				t.Fatalf("failed moved to %s", next)
			}
			if next != StatusFailed && cur != StatusFailed && next.Rank() < cur.Rank() {
				t.Fatalf("status moved backward: %s -> %s", cur, next)
			}
			walk(next, depth-1)
		}
	}
	walk(StatusPending, 4)
}

func TestParseStatus(t *testing.T) {
	for _, st := range []Status{StatusNone, StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed} {
		got, err := ParseStatus(st.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q) error = %v", st.String(), err)
		}
		if got != st {
			t.Errorf("ParseStatus(%q) = %s, want %s", st.String(), got, st)
		}
	}
	if _, err := ParseStatus("seen"); err == nil {
		t.Error("ParseStatus(seen) expected error")
	}
}
