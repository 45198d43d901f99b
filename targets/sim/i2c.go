package sim

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

// ErrNack is returned for transactions addressed to another device.
var ErrNack = errors.New("sim: no acknowledge")

// Bus puts a Chip on an I2C bus at a fixed 7-bit address. The first
// written byte selects the register and the remaining bytes are written
// from there; a read continues from the selected register.
type Bus struct {
	chip    *Chip
	address uint16

	mu  sync.Mutex
	txs int
}

var _ drivers.I2C = (*Bus)(nil)

// NewBus attaches chip to a bus at address.
func NewBus(chip *Chip, address uint16) *Bus {
	return &Bus{chip: chip, address: address}
}

// Chip returns the chip on the bus.
func (b *Bus) Chip() *Chip { return b.chip }

// Transactions returns the number of Tx calls so far.
func (b *Bus) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}

// Tx performs one write-then-read transaction.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.txs++
	b.mu.Unlock()

	if addr != b.address {
		return ErrNack
	}
	if len(w) == 0 {
		return nil
	}
	reg := w[0]
	switch data := w[1:]; {
	case len(data) == 1:
		if err := b.chip.WriteRegister(reg, data[0]); err != nil {
			return err
		}
	case len(data) > 1:
		if err := b.chip.WriteBlock(reg, data); err != nil {
			return err
		}
	}
	switch len(r) {
	case 0:
		return nil
	case 1:
		v, err := b.chip.ReadRegister(reg)
		r[0] = v
		return err
	}
	return b.chip.ReadBlock(reg, r)
}
