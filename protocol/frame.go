package protocol

import "fmt"

// EncodeFrame wraps payload in a frame carrying seq.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	n := MinFrame + len(payload)
	if n > MaxFrame {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLong, n, MaxFrame)
	}
	frame := make([]byte, 0, n)
	frame = append(frame, uint8(n), seq)
	frame = append(frame, payload...)
	crc := CRC16(frame)
	return append(frame, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// Decoder splits a byte stream into frames. After a bad length, CRC or
// sync byte it drops input up to the next sync byte.
type Decoder struct {
	buf     []byte
	lost    bool
	dropped int
}

// Write queues received bytes.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Dropped returns the number of frames discarded as corrupt so far.
func (d *Decoder) Dropped() int { return d.dropped }

// Next returns the next complete frame, or nil when more input is needed.
func (d *Decoder) Next() *Message {
	for len(d.buf) > 0 {
		if d.lost {
			i := indexSync(d.buf)
			if i < 0 {
				d.buf = d.buf[:0]
				return nil
			}
			d.buf = d.buf[i+1:]
			d.lost = false
			continue
		}
		if d.buf[0] == SyncByte {
			d.buf = d.buf[1:]
			continue
		}
		n := int(d.buf[posLen])
		if n < MinFrame || n > MaxFrame {
			d.resync()
			continue
		}
		if len(d.buf) < n {
			return nil
		}
		frame := d.buf[:n]
		crc := uint16(frame[n-3])<<8 | uint16(frame[n-2])
		if frame[n-1] != SyncByte || crc != CRC16(frame[:n-TrailerSize]) {
			d.resync()
			continue
		}
		msg := &Message{
			Seq:     frame[posSeq],
			Payload: append([]byte(nil), frame[HeaderSize:n-TrailerSize]...),
		}
		d.buf = d.buf[n:]
		return msg
	}
	return nil
}

func (d *Decoder) resync() {
	d.dropped++
	d.lost = true
	d.buf = d.buf[1:]
}

func indexSync(b []byte) int {
	for i, c := range b {
		if c == SyncByte {
			return i
		}
	}
	return -1
}
