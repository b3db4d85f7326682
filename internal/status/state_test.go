package status

import (
	"testing"

	"github.com/matheus3301/convsync/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("c1", nil)
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, Connecting},
		{Idle, AuthRequired},
		{Idle, Closed},
		{AuthRequired, Connecting},
		{Connecting, Connected},
		{Connecting, Reconnecting},
		{Connected, Reconnecting},
		{Connected, Closed},
		{Reconnecting, Connecting},
		{Reconnecting, Closed},
		{Error, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("c1", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("c1", nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(IDLE -> CONNECTED) should fail")
	}
}

func TestClosedIsTerminal(t *testing.T) {
	m := NewMachine("c1", nil)
	walkTo(t, m, Closed)
	for _, s := range []State{Idle, Connecting, Connected, Reconnecting, Error} {
		if err := m.Transition(s); err == nil {
			t.Errorf("Transition(CLOSED -> %s) should fail", s)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connection.", 10)
	defer unsub()

	m := NewMachine("session_1", b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != bus.KindConnectionState {
		t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindConnectionState)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.Name != "session_1" || change.From != Idle || change.To != Connecting {
		t.Errorf("change = %+v, want session_1 IDLE -> CONNECTING", change)
	}
}

// TestDisconnectReconnectCycle verifies the reconnect loop:
// CONNECTED → RECONNECTING → CONNECTING → CONNECTED
func TestDisconnectReconnectCycle(t *testing.T) {
	m := NewMachine("c1", nil)
	walkTo(t, m, Connected)

	steps := []State{Reconnecting, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want CONNECTED", m.Current())
	}
}

// TestPairingLifecycle walks a provider through first-run pairing:
// IDLE → AUTH_REQUIRED → CONNECTING → CONNECTED
func TestPairingLifecycle(t *testing.T) {
	m := NewMachine("provider", nil)

	// Pairing must go through CONNECTING.
	_ = m.Transition(AuthRequired)
	if err := m.Transition(Connected); err == nil {
		t.Fatal("Transition(AUTH_REQUIRED -> CONNECTED) should fail")
	}
	for _, s := range []State{Connecting, Connected} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v", s, err)
		}
	}
}

func TestRename(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("connection.", 10)
	defer unsub()

	m := NewMachine("", b)
	m.Rename("session_2")
	_ = m.Transition(Connecting)

	change := (<-ch).Payload.(StatusChange)
	if change.Name != "session_2" {
		t.Errorf("name = %q, want session_2", change.Name)
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Idle:         {},
		AuthRequired: {AuthRequired},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Connected, Reconnecting},
		Closed:       {Closed},
		Error:        {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
