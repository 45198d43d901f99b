// Package protocol implements the host side of the Klipper serial protocol
// used to reach an I2C bus hanging off a Klipper MCU.
//
// A frame on the wire is
//
//	len | seq | payload... | crc16 hi | crc16 lo | 0x7E
//
// where len counts the whole frame and the payload is a run of VLQ encoded
// messages, each starting with its command or response id.
package protocol

// Frame geometry
const (
	HeaderSize  = 2
	TrailerSize = 3
	MinFrame    = HeaderSize + TrailerSize
	MaxFrame    = 64
	MaxPayload  = MaxFrame - MinFrame

	posLen = 0
	posSeq = 1
)

// Sequence and sync bytes
const (
	SeqMask  = 0x0F
	SeqDest  = 0x10
	SyncByte = 0x7E
)

// NextSeq returns the sequence byte following seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | SeqDest
}

// Message is one received frame.
type Message struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether m carries no payload.
func (m *Message) IsAck() bool { return len(m.Payload) == 0 }
