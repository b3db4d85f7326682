// Package provider defines the gateway's view of a messaging network: an
// opaque send call plus inbound messages and receipts published on the bus.
package provider

import (
	"context"
	"errors"

	"github.com/matheus3301/convsync/internal/convo"
)

// ErrNotPaired is returned by Send while the provider has no credentials.
var ErrNotPaired = errors.New("provider is not paired")

// Provider delivers outbound messages. Inbound traffic is published on the
// bus as bus.KindProviderMessage and bus.KindProviderReceipt events.
type Provider interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
	// Send delivers content to the phone number and returns the network's
	// message id.
	Send(ctx context.Context, to, content, mediaRef string) (string, error)
}

// Inbound is a message observed on the network. FromMe marks messages sent
// from the paired account, including ones sent from another device.
type Inbound struct {
	Phone      string
	MessageID  string
	SenderName string
	Body       string
	MediaRef   string
	Kind       string
	FromMe     bool
	Timestamp  int64
}

// Direction returns the conversation direction of the message.
func (m Inbound) Direction() convo.Direction {
	if m.FromMe {
		return convo.Outbound
	}
	return convo.Inbound
}

// Receipt advances the status of messages the paired account sent.
type Receipt struct {
	Phone      string
	MessageIDs []string
	Status     convo.Status
}
