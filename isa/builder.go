package isa

import "lp55231/core"

// Builder appends instructions to a program and keeps the first error,
// so a program can be written as a flat list of calls and checked once:
//
//	var b isa.Builder
//	b.SetPWM(0).Ramp(isa.CT0_488, 4, isa.Up, 255).End(false, true)
//	prog, err := b.Program()
type Builder struct {
	prog Program
	err  error
}

// Add appends the result of a constructor.
func (b *Builder) Add(ins Instruction, err error) *Builder {
	if b.err != nil {
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	b.prog = append(b.prog, ins)
	return b
}

// Len returns the number of instructions added so far, which is also the
// step number of the next one.
func (b *Builder) Len() int { return len(b.prog) }

// Err returns the first error encountered.
func (b *Builder) Err() error { return b.err }

// Program returns the program, or the first error. It also rejects
// programs that do not fit program memory.
func (b *Builder) Program() (Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.prog.Validate(); err != nil {
		return nil, err
	}
	return b.prog, nil
}

func (b *Builder) Ramp(ps PreScale, cycles uint8, dir Direction, steps uint8) *Builder {
	return b.Add(Ramp(ps, cycles, dir, steps))
}

func (b *Builder) RampFromVars(ps PreScale, ascending bool, stepTime, increments Variable) *Builder {
	return b.Add(RampFromVars(ps, ascending, stepTime, increments))
}

func (b *Builder) SetPWM(v uint8) *Builder { return b.Add(SetPWM(v), nil) }

func (b *Builder) SetPWMFromVar(v Variable) *Builder { return b.Add(SetPWMFromVar(v)) }

func (b *Builder) Wait(ps PreScale, cycles uint8) *Builder { return b.Add(Wait(ps, cycles)) }

func (b *Builder) MapChannels(channels ...core.Channel) *Builder {
	return b.Add(MapChannels(channels...))
}

func (b *Builder) MuxSel(led uint8) *Builder { return b.Add(MuxSel(led)) }

func (b *Builder) MuxClr() *Builder { return b.Add(MuxClr(), nil) }

func (b *Builder) Branch(step, loopCount uint8) *Builder { return b.Add(Branch(step, loopCount)) }

func (b *Builder) Rst() *Builder { return b.Add(Rst(), nil) }

func (b *Builder) Int() *Builder { return b.Add(Int(), nil) }

func (b *Builder) End(interrupt, resetPC bool) *Builder { return b.Add(End(interrupt, resetPC), nil) }

func (b *Builder) Ld(target Variable, value uint8) *Builder { return b.Add(Ld(target, value)) }
