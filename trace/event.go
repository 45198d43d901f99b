package trace

import "time"

// Event is one diagnostic record produced by a Tracer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// Session identifies the Tracer (UUID) that produced the event.
	Session string `cbor:"2,keyasint"`

	// Seq numbers the events of one session from 1.
	Seq uint64 `cbor:"3,keyasint"`

	// Depth is the scope nesting level at the time of the event.
	Depth int `cbor:"4,keyasint"`

	Kind Kind `cbor:"5,keyasint"`

	// Register is set for register access events.
	Register uint8 `cbor:"6,keyasint,omitempty"`

	// Value is the byte read or written by a single register access.
	Value uint8 `cbor:"7,keyasint,omitempty"`

	// Data holds the bytes of a block transfer.
	Data []byte `cbor:"8,keyasint,omitempty"`

	// Message is the scope name, text or error string.
	Message string `cbor:"9,keyasint,omitempty"`
}

// Kind classifies an event.
type Kind uint8

const (
	KindScopeEnter Kind = iota
	KindScopeExit
	KindRead
	KindWrite
	KindBlockRead
	KindBlockWrite
	KindText
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScopeEnter:
		return "ENTER"
	case KindScopeExit:
		return "EXIT"
	case KindRead:
		return "READ"
	case KindWrite:
		return "WRITE"
	case KindBlockRead:
		return "BLOCK_READ"
	case KindBlockWrite:
		return "BLOCK_WRITE"
	case KindText:
		return "TEXT"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
