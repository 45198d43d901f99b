package sim

import (
	"lp55231/core"
)

// FailWrite makes the next write to reg fail with err, after letting
// `after` matching writes through. A nil err means ErrInjected.
func (c *Chip) FailWrite(reg uint8, after int, err error) {
	c.addFault(int(reg), true, false, after, err)
}

// FailRead is FailWrite for reads.
func (c *Chip) FailRead(reg uint8, after int, err error) {
	c.addFault(int(reg), false, false, after, err)
}

// FailAfter makes the transfer following `after` successful ones fail,
// whatever register it addresses.
func (c *Chip) FailAfter(after int, err error) {
	c.addFault(-1, false, true, after, err)
}

func (c *Chip) addFault(reg int, write, both bool, after int, err error) {
	if err == nil {
		err = ErrInjected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, &fault{reg: reg, write: write, both: both, after: after, err: err})
}

// ClearFaults drops all pending faults.
func (c *Chip) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = nil
}

// Ops returns a copy of the transaction log.
func (c *Chip) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Op(nil), c.ops...)
}

// ResetOps clears the transaction log.
func (c *Chip) ResetOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

// Register returns the stored value of reg without side effects.
func (c *Chip) Register(reg core.Register) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[reg]
}

// Modes returns the current engine modes.
func (c *Chip) Modes() [core.NumEngines]core.EngineMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modes()
}

// Memory returns a copy of all program memory, page by page.
func (c *Chip) Memory() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, 0, core.MaxPages*core.PageBytes)
	for _, page := range c.mem {
		out = append(out, page[:]...)
	}
	return out
}

// Word returns the instruction word stored at a program address.
func (c *Chip) Word(addr int) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, off := addr/core.InstructionsPerPage, (addr%core.InstructionsPerPage)*core.BytesPerInstruction
	return uint16(c.mem[page][off])<<8 | uint16(c.mem[page][off+1])
}

// Poke stores a word in program memory directly, bypassing mode gating.
func (c *Chip) Poke(addr int, word uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, off := addr/core.InstructionsPerPage, (addr%core.InstructionsPerPage)*core.BytesPerInstruction
	c.mem[page][off] = uint8(word >> 8)
	c.mem[page][off+1] = uint8(word)
}

// RaiseInterrupt sets the interrupt flag of e, as an engine executing
// int or end with interrupt would.
func (c *Chip) RaiseInterrupt(e core.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[core.RegStatusInterrupt] |= 0b100 >> uint(e)
}

// ByteOnly hides the block transfer methods of t.
func ByteOnly(t core.Transport) core.Transport {
	return byteOnly{t}
}

type byteOnly struct{ core.Transport }
