package log

import (
	"time"

	"github.com/rodis120/grenton-go/pkg/wire"
)

// MaxDatagramCapture is the number of datagram bytes kept in a DatagramEvent.
const MaxDatagramCapture = 256

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the client instance that produced the event (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ClientID is the client page the event belongs to (0 when none).
	ClientID int `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Datagram  *DatagramEvent  `cbor:"10,keyasint,omitempty"` // Transport layer
	Message   *MessageEvent   `cbor:"11,keyasint,omitempty"` // Wire layer (decrypted)
	PageState *PageStateEvent `cbor:"12,keyasint,omitempty"` // Subscription pages
	Error     *ErrorEventData `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the datagram layer (encrypted bytes).
	LayerTransport Layer = 0
	// LayerWire is the frame layer (decrypted text).
	LayerWire Layer = 1
	// LayerSubscription is the client page bookkeeping layer.
	LayerSubscription Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSubscription:
		return "SUBSCRIPTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a datagram or frame.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// DatagramEvent captures raw datagram data at the transport layer.
type DatagramEvent struct {
	// Size is the datagram size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the encrypted datagram (truncated to MaxDatagramCapture bytes).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewDatagramEvent captures a copy of data, truncated to MaxDatagramCapture.
func NewDatagramEvent(data []byte) *DatagramEvent {
	n := min(len(data), MaxDatagramCapture)
	captured := make([]byte, n)
	copy(captured, data[:n])
	return &DatagramEvent{
		Size:      len(data),
		Data:      captured,
		Truncated: n < len(data),
	}
}

// MessageEvent captures a decrypted frame at the wire layer.
type MessageEvent struct {
	// Kind distinguishes request/reply/push.
	Kind wire.Kind `cbor:"1,keyasint"`

	// RequestID correlates request/reply pairs (empty for pushes).
	RequestID string `cbor:"2,keyasint,omitempty"`

	// Payload is the frame payload text.
	Payload string `cbor:"3,keyasint,omitempty"`

	// Latency is the round-trip time from send to reply (reply only).
	// Stored as nanoseconds.
	Latency *time.Duration `cbor:"4,keyasint,omitempty"`
}

// Page states recorded in PageStateEvent.
const (
	PageAllocated  = "allocated"
	PageModified   = "modified"
	PageRegistered = "registered"
	PageActive     = "active"
	PageDiscarded  = "discarded"
	PageDestroyed  = "destroyed"
)

// PageStateEvent captures client page lifecycle changes.
type PageStateEvent struct {
	// Entries is the number of features in the page after the change.
	Entries int `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
