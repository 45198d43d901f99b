//go:build linux

// Package linux reaches the chip through a Linux i2c-dev bus.
package linux

import (
	"fmt"
	"sync"

	"github.com/platinasystems/i2c"
)

// maxBlock is the payload of one I2C block transfer. SMBusData holds the
// length byte followed by the data, so a 32 byte program page takes two.
const maxBlock = i2c.BlockMax - 1

// smbus is the part of i2c.Bus the transport uses.
type smbus interface {
	Do(rw i2c.RW, cmd uint8, size i2c.SMBusSize, data *i2c.SMBusData) error
	Close() error
}

// Bus is a register transport on /dev/i2c-N. It implements
// core.BlockTransport and is safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	bus     smbus
	index   int
	address uint16
}

// Open opens /dev/i2c-<index> and addresses the chip at address.
func Open(index int, address uint16) (*Bus, error) {
	if address > 0x7F {
		return nil, fmt.Errorf("linux: i2c address %#x is not 7-bit", address)
	}
	b := new(i2c.Bus)
	if err := b.Open(index); err != nil {
		return nil, fmt.Errorf("linux: open i2c-%d: %w", index, err)
	}
	// the LED driver may already be bound to a kernel driver
	if err := b.ForceSlaveAddress(int(address)); err != nil {
		b.Close()
		return nil, fmt.Errorf("linux: i2c-%d address %#02x: %w", index, address, err)
	}
	return &Bus{bus: b, index: index, address: address}, nil
}

func (b *Bus) String() string {
	return fmt.Sprintf("i2c-%d@%#02x", b.index, b.address)
}

func (b *Bus) ReadRegister(reg uint8) (uint8, error) {
	var data i2c.SMBusData
	if err := b.do(i2c.Read, reg, i2c.ByteData, &data); err != nil {
		return 0, err
	}
	return data[0], nil
}

func (b *Bus) WriteRegister(reg, value uint8) error {
	var data i2c.SMBusData
	data[0] = value
	return b.do(i2c.Write, reg, i2c.ByteData, &data)
}

// ReadBlock reads len(buf) registers from reg in I2C block transfers of
// at most maxBlock bytes.
func (b *Bus) ReadBlock(reg uint8, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), maxBlock)
		var data i2c.SMBusData
		data[0] = uint8(n)
		if err := b.do(i2c.Read, reg, i2c.I2CBlockData, &data); err != nil {
			return err
		}
		copy(buf, data[1:1+n])
		buf = buf[n:]
		reg += uint8(n)
	}
	return nil
}

// WriteBlock writes data to consecutive registers from reg.
func (b *Bus) WriteBlock(reg uint8, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), maxBlock)
		var block i2c.SMBusData
		block[0] = uint8(n)
		copy(block[1:], data[:n])
		if err := b.do(i2c.Write, reg, i2c.I2CBlockData, &block); err != nil {
			return err
		}
		data = data[n:]
		reg += uint8(n)
	}
	return nil
}

// Close releases the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus.Close()
}

func (b *Bus) do(rw i2c.RW, reg uint8, size i2c.SMBusSize, data *i2c.SMBusData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Do(rw, reg, size, data); err != nil {
		return fmt.Errorf("%v reg %#02x: %w", b, reg, err)
	}
	return nil
}
