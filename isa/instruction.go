// Package isa encodes the 16-bit micro-instructions executed by the
// LP55231 programming engines.
//
// Every constructor checks its operands against the width of the field
// they are packed into and returns a *core.RangeError instead of
// truncating.
package isa

import (
	"fmt"
	"strconv"

	"lp55231/core"
)

// Instruction is one program word, stored most significant byte first.
type Instruction struct {
	MSB uint8
	LSB uint8
}

// FromWord splits a 16-bit word into an Instruction.
func FromWord(w uint16) Instruction {
	return Instruction{MSB: uint8(w >> 8), LSB: uint8(w)}
}

// Word joins the two bytes back into a 16-bit word.
func (i Instruction) Word() uint16 {
	return uint16(i.MSB)<<8 | uint16(i.LSB)
}

func (i Instruction) String() string {
	return fmt.Sprintf("0x%04x", i.Word())
}

// Variable selects one of the engine variables. A, B and C are local to
// each engine; D is the global variable written through core.RegVariable.
type Variable uint8

const (
	A Variable = iota
	B
	C
	D
)

// NumVariables is the number of addressable variables
const NumVariables = 4

func (v Variable) String() string {
	if v < NumVariables {
		return string(rune('a' + v))
	}
	return "var(" + strconv.Itoa(int(v)) + ")"
}

// ParseVariable accepts "a".."d" in either case.
func ParseVariable(s string) (Variable, error) {
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c <= 'd' {
			return Variable(c - 'a'), nil
		}
	}
	return 0, fmt.Errorf("variable %q: %w", s, core.ErrValidation)
}

// PreScale is the time unit of ramp and wait cycles.
type PreScale uint8

const (
	CT0_488  PreScale = iota // 0.488 ms
	CT15_625                 // 15.625 ms
)

func (p PreScale) String() string {
	switch p {
	case CT0_488:
		return "0.488ms"
	case CT15_625:
		return "15.625ms"
	}
	return "prescale(" + strconv.Itoa(int(p)) + ")"
}

// Direction of a ramp.
type Direction uint8

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// Field limits shared by the constructors and the assembler.
const (
	MaxCycles    = 31 // ramp/wait cycles per step, 5 bits
	MaxLoopCount = 63 // branch loop count, 6 bits
	MaxSkip      = 15 // conditional jump skip count, 4 bits
	MaxMuxSelect = 16 // mux_sel LED select, 0 clears
	MaxAddress   = core.MaxInstructions - 1
)
