// Package machine reaches the chip through a TinyGo I2C bus such as
// machine.I2C0, or any other drivers.I2C.
package machine

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// Bus implements core.BlockTransport on a drivers.I2C. It is not safe for
// concurrent use.
type Bus struct {
	bus     drivers.I2C
	address uint16
	buf     [1 + 32]byte
}

// New addresses the chip at the 7-bit address on bus.
func New(bus drivers.I2C, address uint16) (*Bus, error) {
	if address > 0x7F {
		return nil, fmt.Errorf("machine: i2c address %#x is not 7-bit", address)
	}
	return &Bus{bus: bus, address: address}, nil
}

func (b *Bus) ReadRegister(reg uint8) (uint8, error) {
	b.buf[0] = reg
	if err := b.bus.Tx(b.address, b.buf[:1], b.buf[1:2]); err != nil {
		return 0, err
	}
	return b.buf[1], nil
}

func (b *Bus) WriteRegister(reg, value uint8) error {
	b.buf[0] = reg
	b.buf[1] = value
	return b.bus.Tx(b.address, b.buf[:2], nil)
}

// ReadBlock reads len(buf) registers starting at reg in one transaction.
func (b *Bus) ReadBlock(reg uint8, buf []byte) error {
	b.buf[0] = reg
	return b.bus.Tx(b.address, b.buf[:1], buf)
}

// WriteBlock writes data to consecutive registers starting at reg.
func (b *Bus) WriteBlock(reg uint8, data []byte) error {
	w := b.buf[:0]
	if len(data) >= len(b.buf) {
		w = make([]byte, 0, 1+len(data))
	}
	w = append(w, reg)
	w = append(w, data...)
	return b.bus.Tx(b.address, w, nil)
}
