package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so "view." matches every view event.
const (
	KindViewChanged      = "view.changed"
	KindConnectionState  = "connection.state_changed"
	KindSendAck          = "send.ack"
	KindSendFailed       = "send.failed"
	KindProviderMessage  = "provider.message"
	KindProviderHistory  = "provider.history"
	KindProviderReceipt  = "provider.receipt"
	KindProviderState    = "provider.state"
	KindProviderPairCode = "provider.pair_code"
	KindStoreAppended    = "store.appended"
	KindStoreStatus      = "store.status"
)
