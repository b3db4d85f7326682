package wa

import (
	"context"

	"go.mau.fi/whatsmeow"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/status"
)

// AuthEventType enumerates pairing event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent represents a pairing lifecycle event.
type AuthEvent struct {
	Type    AuthEventType
	QRCode  string
	Message string
}

// StartQRAuth begins QR pairing. Events are returned on the channel and
// mirrored on the bus as bus.KindProviderPairCode; the channel closes when
// pairing ends.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan AuthEvent, 10)
	emit := func(evt AuthEvent) {
		out <- evt
		a.bus.Emit(bus.KindProviderPairCode, evt)
	}

	go func() {
		defer close(out)

		// Connect must be called after GetQRChannel.
		_ = a.machine.Transition(status.Connecting)
		if err := a.client.Connect(); err != nil {
			_ = a.machine.Transition(status.Error)
			emit(AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			return
		}

		for item := range qrChan {
			switch item.Event {
			case "code":
				emit(AuthEvent{Type: AuthEventQRCode, QRCode: item.Code})
			case "success":
				emit(AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"})
				return
			case "timeout":
				emit(AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"})
				return
			default:
				if item.Error != nil {
					emit(AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()})
					return
				}
			}
		}
	}()

	return out, nil
}

// IsQREvent checks whether a QR channel item is a QR code event.
func IsQREvent(item whatsmeow.QRChannelItem) bool {
	return item.Event == "code"
}
