package isa

import (
	"lp55231/core"
)

func checkVar(field string, v Variable) error {
	return core.CheckRange(field, int(v), 0, NumVariables-1)
}

func checkPreScale(p PreScale) error {
	return core.CheckRange("prescale", int(p), 0, int(CT15_625))
}

func checkAddress(field string, addr uint8) error {
	return core.CheckRange(field, int(addr), 0, MaxAddress)
}

// checkTarget rejects D as an arithmetic destination; its encodings
// collide with the mux opcodes.
func checkTarget(op string, v Variable) error {
	return core.CheckRange(op+" target variable", int(v), 0, int(C))
}

// Ramp changes the PWM of the mapped outputs by one step every
// cyclesPerStep cycles, steps times.
func Ramp(ps PreScale, cyclesPerStep uint8, dir Direction, steps uint8) (Instruction, error) {
	if err := checkPreScale(ps); err != nil {
		return Instruction{}, err
	}
	if err := core.CheckRange("cycles per step", int(cyclesPerStep), 1, MaxCycles); err != nil {
		return Instruction{}, err
	}
	if err := core.CheckRange("direction", int(dir), 0, int(Down)); err != nil {
		return Instruction{}, err
	}
	return Instruction{
		MSB: cyclesPerStep<<1 | uint8(ps)<<6 | uint8(dir),
		LSB: steps,
	}, nil
}

// RampFromVars ramps with the step time and increment count taken from
// variables.
func RampFromVars(ps PreScale, ascending bool, stepTime, increments Variable) (Instruction, error) {
	if err := checkPreScale(ps); err != nil {
		return Instruction{}, err
	}
	if err := checkVar("step time variable", stepTime); err != nil {
		return Instruction{}, err
	}
	if err := checkVar("increments variable", increments); err != nil {
		return Instruction{}, err
	}
	lsb := uint8(ps)<<6 | uint8(stepTime)<<2 | uint8(increments)
	if ascending {
		lsb |= 1 << 5
	}
	return Instruction{MSB: 0x84, LSB: lsb}, nil
}

// SetPWM sets the PWM of the mapped outputs.
func SetPWM(value uint8) Instruction {
	return Instruction{MSB: 0x40, LSB: value}
}

// SetPWMFromVar sets the PWM of the mapped outputs from a variable.
func SetPWMFromVar(v Variable) (Instruction, error) {
	if err := checkVar("pwm variable", v); err != nil {
		return Instruction{}, err
	}
	return Instruction{MSB: 0x84, LSB: 0x60 | uint8(v)}, nil
}

// Wait pauses the engine for the given number of cycles.
func Wait(ps PreScale, cycles uint8) (Instruction, error) {
	if err := checkPreScale(ps); err != nil {
		return Instruction{}, err
	}
	if err := core.CheckRange("wait cycles", int(cycles), 1, MaxCycles); err != nil {
		return Instruction{}, err
	}
	return Instruction{MSB: cycles<<1 | uint8(ps)<<6}, nil
}

// MapChannels builds a mapping table row with one bit per channel.
func MapChannels(channels ...core.Channel) (Instruction, error) {
	var w uint16
	for _, ch := range channels {
		if !ch.Valid() {
			return Instruction{}, &core.RangeError{Field: "channel", Value: int(ch), Max: core.NumChannels - 1}
		}
		w |= 1 << uint(ch)
	}
	return FromWord(w), nil
}

func muxAddr(op string, msb, flag, addr uint8) (Instruction, error) {
	if err := checkAddress(op+" address", addr); err != nil {
		return Instruction{}, err
	}
	return Instruction{MSB: msb, LSB: flag | addr}, nil
}

// MuxLdStart sets the start address of the mapping table.
func MuxLdStart(addr uint8) (Instruction, error) { return muxAddr("mux_ld_start", 0x9E, 0, addr) }

// MuxMapStart sets the start address of the mapping table and maps its
// first row.
func MuxMapStart(addr uint8) (Instruction, error) { return muxAddr("mux_map_start", 0x9C, 0, addr) }

// MuxLdEnd sets the end address of the mapping table.
func MuxLdEnd(addr uint8) (Instruction, error) { return muxAddr("mux_ld_end", 0x9C, 0x80, addr) }

// MuxLdAddr sets the mapping table pointer without mapping.
func MuxLdAddr(addr uint8) (Instruction, error) { return muxAddr("mux_ld_addr", 0x9F, 0, addr) }

// MuxMapAddr maps the mapping table row at addr.
func MuxMapAddr(addr uint8) (Instruction, error) { return muxAddr("mux_map_addr", 0x9F, 0x80, addr) }

// MuxSel maps a single output to the engine: 1-9 select D1-D9, 10-12
// the GPO and faders, 0 clears the mapping.
func MuxSel(led uint8) (Instruction, error) {
	if err := core.CheckRange("mux_sel led", int(led), 0, MaxMuxSelect); err != nil {
		return Instruction{}, err
	}
	return Instruction{MSB: 0x9D, LSB: led}, nil
}

// MuxClr clears the engine mapping.
func MuxClr() Instruction { return Instruction{MSB: 0x9D, LSB: 0x00} }

// MuxMapNext maps the next mapping table row.
func MuxMapNext() Instruction { return Instruction{MSB: 0x9D, LSB: 0x80} }

// MuxMapPrev maps the previous mapping table row.
func MuxMapPrev() Instruction { return Instruction{MSB: 0x9D, LSB: 0xC0} }

// MuxLdNext moves the table pointer forward without mapping.
func MuxLdNext() Instruction { return Instruction{MSB: 0x9D, LSB: 0x81} }

// MuxLdPrev moves the table pointer back without mapping.
func MuxLdPrev() Instruction { return Instruction{MSB: 0x9D, LSB: 0xC1} }

// Rst resets the program counter and starts over.
func Rst() Instruction { return Instruction{} }

// Branch jumps to step loopCount times; a loop count of zero loops
// forever.
func Branch(step, loopCount uint8) (Instruction, error) {
	if err := checkAddress("branch step", step); err != nil {
		return Instruction{}, err
	}
	if err := core.CheckRange("loop count", int(loopCount), 0, MaxLoopCount); err != nil {
		return Instruction{}, err
	}
	return FromWord(0xA000 | uint16(loopCount)<<7 | uint16(step)), nil
}

// BranchVars is Branch with the loop count held in a variable.
func BranchVars(step uint8, loopCount Variable) (Instruction, error) {
	if err := checkAddress("branch step", step); err != nil {
		return Instruction{}, err
	}
	if err := checkVar("loop count variable", loopCount); err != nil {
		return Instruction{}, err
	}
	return FromWord(0x8600 | uint16(step)<<2 | uint16(loopCount)), nil
}

// Int raises an interrupt and continues.
func Int() Instruction { return Instruction{MSB: 0xC4} }

// End stops the engine, optionally raising an interrupt and resetting the
// program counter.
func End(interrupt, resetPC bool) Instruction {
	msb := uint8(0xC0)
	if interrupt {
		msb |= 1 << 4
	}
	if resetPC {
		msb |= 1 << 3
	}
	return Instruction{MSB: msb}
}

func jump(op string, base uint16, skip uint8, lo, hi Variable) (Instruction, error) {
	if err := core.CheckRange(op+" skip", int(skip), 0, MaxSkip); err != nil {
		return Instruction{}, err
	}
	if err := checkVar(op+" variable", lo); err != nil {
		return Instruction{}, err
	}
	if err := checkVar(op+" variable", hi); err != nil {
		return Instruction{}, err
	}
	return FromWord(base | uint16(skip)<<4 | uint16(hi)<<2 | uint16(lo)), nil
}

// Jne skips the next skip instructions when v1 != v2.
func Jne(skip uint8, v1, v2 Variable) (Instruction, error) {
	return jump("jne", 0x8800, skip, v1, v2)
}

// Jl skips the next skip instructions when v1 < v2.
func Jl(skip uint8, v1, v2 Variable) (Instruction, error) {
	return jump("jl", 0x8A00, skip, v2, v1)
}

// Jge skips the next skip instructions when v1 >= v2.
func Jge(skip uint8, v1, v2 Variable) (Instruction, error) {
	return jump("jge", 0x8C00, skip, v2, v1)
}

// Je skips the next skip instructions when v1 == v2.
func Je(skip uint8, v1, v2 Variable) (Instruction, error) {
	return jump("je", 0x8E00, skip, v2, v1)
}

func arith(op string, msb uint8, target Variable, lsb uint8) (Instruction, error) {
	if err := checkTarget(op, target); err != nil {
		return Instruction{}, err
	}
	return Instruction{MSB: msb | uint8(target)<<2, LSB: lsb}, nil
}

// Ld loads value into target.
func Ld(target Variable, value uint8) (Instruction, error) {
	return arith("ld", 0x90, target, value)
}

// AddNumerical adds value to target.
func AddNumerical(target Variable, value uint8) (Instruction, error) {
	return arith("add", 0x91, target, value)
}

// SubNumerical subtracts value from target.
func SubNumerical(target Variable, value uint8) (Instruction, error) {
	return arith("sub", 0x92, target, value)
}

// AddVars stores v1 + v2 in target.
func AddVars(target, v1, v2 Variable) (Instruction, error) {
	if err := checkVar("addv variable", v1); err != nil {
		return Instruction{}, err
	}
	if err := checkVar("addv variable", v2); err != nil {
		return Instruction{}, err
	}
	return arith("addv", 0x93, target, uint8(v1)<<2|uint8(v2))
}

// SubVars stores v1 - v2 in target.
func SubVars(target, v1, v2 Variable) (Instruction, error) {
	if err := checkVar("subv variable", v1); err != nil {
		return Instruction{}, err
	}
	if err := checkVar("subv variable", v2); err != nil {
		return Instruction{}, err
	}
	return arith("subv", 0x93, target, 0x10|uint8(v1)<<2|uint8(v2))
}

// Must returns ins or panics when err is non-nil. Use it for programs
// built from constants.
func Must(ins Instruction, err error) Instruction {
	if err != nil {
		panic(err)
	}
	return ins
}
