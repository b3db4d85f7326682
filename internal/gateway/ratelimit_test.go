package gateway

import (
	"testing"
	"time"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(3, time.Second)
	base := time.Unix(1700000000, 0)

	for i := range 3 {
		if !rl.Allow(base.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("event %d rejected", i)
		}
	}
	if rl.Allow(base.Add(500 * time.Millisecond)) {
		t.Error("fourth event inside the window allowed")
	}
	// The first event leaves the window.
	if !rl.Allow(base.Add(1050 * time.Millisecond)) {
		t.Error("event after the window rejected")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Errorf("defaults = %d/%s", rl.limit, rl.window)
	}
}
