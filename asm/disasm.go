package asm

import (
	"fmt"
	"strings"

	"lp55231/isa"
)

var jumpNames = [4]string{"jne", "jl", "jge", "je"}

var arithNames = [3]string{"ld", "add", "sub"}

// Disassemble renders ins as one line of source. Words that do not
// assemble back to themselves, mapping table rows among them, come out as
// a .word directive.
func Disassemble(ins isa.Instruction) string {
	s := decode(ins)
	if s != "" {
		if p, err := Assemble(s); err == nil && len(p) == 1 && p[0] == ins {
			return s
		}
	}
	return fmt.Sprintf(".word 0x%04x", ins.Word())
}

// DisassembleProgram renders prog one instruction per line, each prefixed
// with its step number as a comment.
func DisassembleProgram(prog isa.Program) string {
	var b strings.Builder
	for i, ins := range prog {
		fmt.Fprintf(&b, "%-24s ; %2d: %04x\n", Disassemble(ins), i, ins.Word())
	}
	return b.String()
}

func decode(ins isa.Instruction) string {
	msb, lsb := ins.MSB, ins.LSB
	w := ins.Word()
	ps := isa.PreScale(msb >> 6 & 1)

	switch {
	case w == 0:
		return "rst"
	case msb == 0x40:
		return fmt.Sprintf("pwm %d", lsb)
	case msb&0x80 == 0:
		cycles := msb >> 1 & 0x1F
		if lsb == 0 && msb&1 == 0 {
			return fmt.Sprintf("wait %v %d", ps, cycles)
		}
		return fmt.Sprintf("ramp %v %d %v %d", ps, cycles, isa.Direction(msb&1), lsb)
	case msb == 0x84:
		if lsb&0xFC == 0x60 {
			return fmt.Sprintf("pwmv %v", isa.Variable(lsb&3))
		}
		dir := isa.Down
		if lsb&0x20 != 0 {
			dir = isa.Up
		}
		return fmt.Sprintf("rampv %v %v %v %v", isa.PreScale(lsb>>6&1), dir, isa.Variable(lsb>>2&3), isa.Variable(lsb&3))
	case msb&0xFE == 0x86:
		return fmt.Sprintf("branchv %d %v", w>>2&0x7F, isa.Variable(w&3))
	case msb >= 0x88 && msb <= 0x8F:
		op := msb >> 1 & 3 // 0x88 jne, 0x8a jl, 0x8c jge, 0x8e je
		v1, v2 := isa.Variable(w&3), isa.Variable(w>>2&3)
		if op != 0 {
			v1, v2 = v2, v1
		}
		return fmt.Sprintf("%s %d %v %v", jumpNames[op], w>>4&0x1F, v1, v2)
	case msb >= 0x90 && msb <= 0x9B:
		target := isa.Variable(msb >> 2 & 3)
		if op := msb & 3; op < 3 {
			return fmt.Sprintf("%s %v %d", arithNames[op], target, lsb)
		}
		name := "addv"
		if lsb&0x10 != 0 {
			name = "subv"
		}
		return fmt.Sprintf("%s %v %v %v", name, target, isa.Variable(lsb>>2&3), isa.Variable(lsb&3))
	case msb == 0x9C:
		if lsb&0x80 == 0 {
			return fmt.Sprintf("mux_map_start %d", lsb)
		}
		return fmt.Sprintf("mux_ld_end %d", lsb&0x7F)
	case msb == 0x9D:
		switch lsb {
		case 0x00:
			return "mux_clr"
		case 0x80:
			return "mux_map_next"
		case 0xC0:
			return "mux_map_prev"
		case 0x81:
			return "mux_ld_next"
		case 0xC1:
			return "mux_ld_prev"
		}
		return fmt.Sprintf("mux_sel %d", lsb)
	case msb == 0x9E:
		return fmt.Sprintf("mux_ld_start %d", lsb)
	case msb == 0x9F:
		if lsb&0x80 == 0 {
			return fmt.Sprintf("mux_ld_addr %d", lsb)
		}
		return fmt.Sprintf("mux_map_addr %d", lsb&0x7F)
	case msb&0xE0 == 0xA0:
		return fmt.Sprintf("branch %d %d", w&0x7F, w>>7&0x3F)
	case w == isa.Int().Word():
		return "int"
	case msb&0xE7 == 0xC0 && lsb == 0:
		var flags []string
		if msb&0x10 != 0 {
			flags = append(flags, "int")
		}
		if msb&0x08 != 0 {
			flags = append(flags, "reset")
		}
		return strings.TrimSpace("end " + strings.Join(flags, " "))
	}
	return ""
}
