package convo

import "fmt"

// Status is the delivery state of an outbound message.
//
// Pending, Sent, Delivered and Read form a total order and a message only ever
// moves forward along it. Failed is reachable from every state and is terminal.
// None is carried by inbound messages, which have no delivery state.
type Status uint8

const (
	StatusNone Status = iota
	StatusPending
	StatusSent
	StatusDelivered
	StatusRead
	StatusFailed
)

var statusNames = map[Status]string{
	StatusNone:      "",
	StatusPending:   "pending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
	StatusFailed:    "failed",
}

// ParseStatus converts a wire name into a Status. The empty string maps to StatusNone.
func ParseStatus(s string) (Status, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown message status %q", s)
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Rank is the position of s in the forward order. None and Failed have no rank
// and report -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	st, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Advance merges an incoming status into the current one and reports whether
// the current status changed. It is the only place status merging is decided.
func Advance(current, incoming Status) (Status, bool) {
	if current == StatusFailed || incoming == StatusNone || incoming == current {
		return current, false
	}
	if incoming == StatusFailed {
		return StatusFailed, true
	}
	if current == StatusNone || incoming.Rank() > current.Rank() {
		return incoming, true
	}
	return current, false
}
