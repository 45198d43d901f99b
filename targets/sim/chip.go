// Package sim is a register-level model of the LP55231 used by tests and by
// the host tool when no hardware is attached.
//
// The model covers what the driver depends on: the engine mode state
// machine, the ENGINE_BUSY window after entering LoadProgram, program
// memory gating, auto-increment and reset. Engines never execute.
package sim

import (
	"errors"
	"sync"

	"lp55231/core"
)

// ErrInjected is returned by injected faults that do not name an error.
var ErrInjected = errors.New("sim: injected fault")

// Default start addresses restored on reset and on entering LoadProgram.
var defaultStartAddrs = [core.NumEngines]uint8{0, 8, 16}

// DefaultBusyPolls is the number of STATUS reads that report ENGINE_BUSY
// after the engines enter LoadProgram.
const DefaultBusyPolls = 3

// Op is one bus transaction seen by the chip.
type Op struct {
	Write bool
	Block bool
	Reg   uint8
	Value uint8  // single register transfers
	Data  []byte // block transfers
}

// Chip implements core.BlockTransport. It is safe for concurrent use.
type Chip struct {
	mu        sync.Mutex
	regs      [256]uint8
	mem       [core.MaxPages][core.PageBytes]uint8
	busyPolls int
	busyLeft  int
	ops       []Op
	faults    []*fault
}

type fault struct {
	reg   int // -1 matches any register
	write bool
	both  bool // matches reads and writes
	after int  // matching transfers to let through first
	err   error
}

// Option configures a Chip.
type Option func(*Chip)

// WithBusyPolls sets how many STATUS reads report ENGINE_BUSY after
// entering LoadProgram.
func WithBusyPolls(n int) Option {
	return func(c *Chip) { c.busyPolls = n }
}

// New returns a chip in its power-on state.
func New(opts ...Option) *Chip {
	c := &Chip{busyPolls: DefaultBusyPolls}
	for _, opt := range opts {
		opt(c)
	}
	c.powerOn()
	return c
}

func (c *Chip) powerOn() {
	c.regs = [256]uint8{}
	c.mem = [core.MaxPages][core.PageBytes]uint8{}
	c.busyLeft = 0
	c.resetStartAddrs()
}

func (c *Chip) resetStartAddrs() {
	for e, addr := range defaultStartAddrs {
		c.regs[core.ProgramStartRegister(core.Engine(e))] = addr
	}
}

func (c *Chip) modes() [core.NumEngines]core.EngineMode {
	var m [core.NumEngines]core.EngineMode
	v := c.regs[core.RegEngineCntrl2]
	for _, e := range core.Engines {
		m[e] = core.EngineMode(core.ModeField(e).Value(v))
	}
	return m
}

// loadMode reports whether program memory is reachable.
func (c *Chip) loadMode() bool {
	for _, m := range c.modes() {
		if m != core.ModeLoadProgram {
			return false
		}
	}
	return true
}

func (c *Chip) autoIncrement() bool {
	return core.FieldEnAutoIncr.IsSet(c.regs[core.RegMisc])
}

// memSlot maps a program memory register to its byte in the selected page.
func (c *Chip) memSlot(reg uint8) (*uint8, bool) {
	if reg < uint8(core.RegProgMemBase) || int(reg) >= int(core.RegProgMemBase)+core.PageBytes {
		return nil, false
	}
	page := int(core.FieldPageSel.Value(c.regs[core.RegProgMemPageSel]))
	if page >= core.MaxPages {
		return nil, true
	}
	return &c.mem[page][reg-uint8(core.RegProgMemBase)], true
}

func (c *Chip) checkFault(reg uint8, write bool) error {
	for i, f := range c.faults {
		if f.reg >= 0 && f.reg != int(reg) {
			continue
		}
		if !f.both && f.write != write {
			continue
		}
		if f.after > 0 {
			f.after--
			continue
		}
		c.faults = append(c.faults[:i], c.faults[i+1:]...)
		return f.err
	}
	return nil
}

func (c *Chip) read(reg uint8) uint8 {
	switch core.Register(reg) {
	case core.RegStatusInterrupt:
		v := c.regs[reg]
		if c.busyLeft > 0 {
			c.busyLeft--
			v |= core.FieldEngineBusy.Mask()
		}
		// reading clears the engine interrupts
		c.regs[reg] &^= core.FieldEng1Int.Mask() | core.FieldEng2Int.Mask() | core.FieldEng3Int.Mask()
		return v
	case core.RegReset:
		return 0
	}
	if slot, ok := c.memSlot(reg); ok {
		if slot == nil || !c.loadMode() {
			return 0
		}
		return *slot
	}
	return c.regs[reg]
}

func (c *Chip) write(reg, v uint8) {
	switch core.Register(reg) {
	case core.RegEngineCntrl2:
		c.writeModes(v)
		return
	case core.RegReset:
		if v == core.ResetValue {
			c.powerOn()
		}
		return
	case core.RegStatusInterrupt:
		return
	case core.RegProgMemPageSel:
		c.regs[reg] = core.FieldPageSel.Value(v)
		return
	case core.RegEngine1PC, core.RegEngine2PC, core.RegEngine3PC,
		core.RegEng1ProgStartAddr, core.RegEng2ProgStartAddr, core.RegEng3ProgStartAddr:
		c.regs[reg] = core.FieldProgramAddr.Value(v)
		return
	}
	if slot, ok := c.memSlot(reg); ok {
		// writes are dropped outside load mode and while the engines are busy
		if slot != nil && c.loadMode() && c.busyLeft == 0 {
			*slot = v
		}
		return
	}
	c.regs[reg] = v
}

// writeModes applies ENGINE_CNTRL2. LoadProgram cannot be entered from
// RunProgram; such an engine keeps its mode.
func (c *Chip) writeModes(v uint8) {
	old := c.modes()
	out := uint8(0)
	entered := false
	for _, e := range core.Engines {
		f := core.ModeField(e)
		m := core.EngineMode(f.Value(v))
		if m == core.ModeLoadProgram && old[e] == core.ModeRunProgram {
			m = old[e]
		}
		if m == core.ModeLoadProgram && old[e] != core.ModeLoadProgram {
			entered = true
		}
		out, _ = f.Apply(uint8(m), out)
	}
	c.regs[core.RegEngineCntrl2] = out
	if entered {
		c.busyLeft = c.busyPolls
		c.resetStartAddrs()
	}
}

// ReadRegister implements core.Transport.
func (c *Chip) ReadRegister(reg uint8) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkFault(reg, false); err != nil {
		return 0, err
	}
	v := c.read(reg)
	c.ops = append(c.ops, Op{Reg: reg, Value: v})
	return v, nil
}

// WriteRegister implements core.Transport.
func (c *Chip) WriteRegister(reg, value uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkFault(reg, true); err != nil {
		return err
	}
	c.ops = append(c.ops, Op{Write: true, Reg: reg, Value: value})
	c.write(reg, value)
	return nil
}

// ReadBlock implements core.BlockTransport. Without EN_AUTO_INCR every
// byte comes from reg.
func (c *Chip) ReadBlock(reg uint8, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkFault(reg, false); err != nil {
		return err
	}
	step := uint8(0)
	if c.autoIncrement() {
		step = 1
	}
	for i := range buf {
		buf[i] = c.read(reg + uint8(i)*step)
	}
	c.ops = append(c.ops, Op{Block: true, Reg: reg, Data: append([]byte(nil), buf...)})
	return nil
}

// WriteBlock implements core.BlockTransport. Without EN_AUTO_INCR every
// byte lands on reg.
func (c *Chip) WriteBlock(reg uint8, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkFault(reg, true); err != nil {
		return err
	}
	c.ops = append(c.ops, Op{Write: true, Block: true, Reg: reg, Data: append([]byte(nil), data...)})
	step := uint8(0)
	if c.autoIncrement() {
		step = 1
	}
	for i, v := range data {
		c.write(reg+uint8(i)*step, v)
	}
	return nil
}

var _ core.BlockTransport = (*Chip)(nil)
