// Package status tracks the connection state of a transport channel or of the
// gateway's provider link.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/convsync/internal/bus"
)

// State represents a connection state.
type State string

const (
	Idle         State = "IDLE"
	AuthRequired State = "AUTH_REQUIRED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Closed       State = "CLOSED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions. Closed is terminal.
var validTransitions = map[State][]State{
	Idle:         {Connecting, AuthRequired, Closed, Error},
	AuthRequired: {Connecting, Closed, Error},
	Connecting:   {Connected, AuthRequired, Reconnecting, Closed, Error},
	Connected:    {Reconnecting, AuthRequired, Closed, Error},
	Reconnecting: {Connecting, Closed, Error},
	Error:        {Idle, Connecting, Closed},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	name    string
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle. name identifies the
// owner (a conversation id or "provider") in change events.
func NewMachine(name string, b *bus.Bus) *Machine {
	return &Machine{
		name:    name,
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindConnectionState, StatusChange{
			Name: m.name,
			From: from,
			To:   to,
		})
	}
	return nil
}

// Rename changes the owner name reported in later change events. Channels use
// it once the server assigned a conversation id.
func (m *Machine) Rename(name string) {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	Name string
	From State
	To   State
}
