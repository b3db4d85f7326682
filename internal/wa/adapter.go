// Package wa is the gateway's WhatsApp provider, built on whatsmeow.
package wa

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/status"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and implements provider.Provider.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	machine   *status.Machine
	logger    *zap.Logger
}

// NewAdapter opens the whatsmeow device store at dbPath.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("convsync", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		bus:       b,
		machine:   machine,
		logger:    logger,
	}
	a.client.AddEventHandler(NewEventHandler(b, machine, a, logger).Handle)
	return a, nil
}

func (a *Adapter) Name() string { return "whatsapp" }

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Start connects when paired; otherwise it leaves the provider waiting for
// pairing.
func (a *Adapter) Start(context.Context) error {
	if !a.IsLoggedIn() {
		a.logger.Info("no WhatsApp credentials, pairing required")
		_ = a.machine.Transition(status.AuthRequired)
		return nil
	}
	_ = a.machine.Transition(status.Connecting)
	a.logger.Info("connecting to WhatsApp")
	if err := a.client.Connect(); err != nil {
		_ = a.machine.Transition(status.Error)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Stop terminates the WhatsApp connection.
func (a *Adapter) Stop() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
	_ = a.machine.Transition(status.Closed)
}

// Logout invalidates the pairing and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Send sends a text message to a phone number. A media reference is sent as
// a link after the text.
func (a *Adapter) Send(ctx context.Context, to, content, mediaRef string) (string, error) {
	if !a.IsLoggedIn() {
		return "", provider.ErrNotPaired
	}
	jid, err := PhoneJID(to)
	if err != nil {
		return "", err
	}
	body := content
	if mediaRef != "" {
		body = strings.TrimSpace(content + "\n" + mediaRef)
	}
	resp, err := a.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// GetQRChannel returns the QR channel for pairing. Must be called before Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already paired")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// PhoneNumber returns the paired account's phone number, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a == nil || a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}

// PhoneJID builds the user JID of a phone number. Formatting characters are
// ignored.
func PhoneJID(phone string) (types.JID, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 6 {
		return types.JID{}, fmt.Errorf("invalid phone number %q", phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
