// Package v1 defines the convsync chat protocol spoken over the widget
// WebSocket, and the JSON bodies of the gateway REST endpoints.
//
// Both the gateway and the operator daemon import it, so the wire shapes
// have exactly one definition.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is embedded into every envelope.
const Version = 1

// Subprotocol is negotiated on the WebSocket handshake.
const Subprotocol = "convsync.chat.v1"

// Envelope types (wire-stable).
const (
	// TypeWelcome carries the conversation id (server -> client, once per connect).
	TypeWelcome = "welcome"
	// TypeUserInfo updates the visitor's contact details (client -> server).
	TypeUserInfo = "userInfo"
	// TypeUserInfoAck answers TypeUserInfo (server -> client).
	TypeUserInfoAck = "userInfoAck"
	// TypeChat carries message content in both directions.
	TypeChat = "chat"
	// TypeStatusUpdate advances a message's delivery status.
	TypeStatusUpdate = "statusUpdate"
	// TypeActiveSessions is both the listing request and its response.
	TypeActiveSessions = "activeSessions"
	// TypeError reports a rejected envelope; Ref points at it.
	TypeError = "error"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeBadRequest  = "bad_request"
	CodeTooLarge    = "too_large"
	CodeRateLimited = "rate_limited"
	CodeForbidden   = "forbidden"
	CodeInternal    = "internal"
	CodeSendFailed  = "send_failed"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Ref     string          `json:"ref,omitempty"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %d", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}
	switch e.Type {
	case TypeWelcome,
		TypeUserInfo,
		TypeUserInfoAck,
		TypeChat,
		TypeStatusUpdate,
		TypeActiveSessions,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// NewEnvelope wraps payload into an envelope with a fresh id.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      uuid.NewString(),
		TS:      time.Now().UTC(),
		Payload: raw,
	}, nil
}

// Reply wraps payload into an envelope referencing req.
func Reply(req Envelope, typ string, payload any) (Envelope, error) {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Ref = req.ID
	return env, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}
