package asm

import (
	"fmt"
	"strings"

	"lp55231/core"
	"lp55231/isa"
)

type encoder struct {
	min, max int
	usage    string
	fn       func(p *operands) (isa.Instruction, error)
}

func fixed(ins isa.Instruction) func(*operands) (isa.Instruction, error) {
	return func(*operands) (isa.Instruction, error) { return ins, nil }
}

func muxAddr(f func(uint8) (isa.Instruction, error)) encoder {
	return encoder{1, 1, "<address>", func(p *operands) (isa.Instruction, error) { return f(p.addr()) }}
}

func arith(f func(isa.Variable, uint8) (isa.Instruction, error)) encoder {
	return encoder{2, 2, "<target> <value>", func(p *operands) (isa.Instruction, error) {
		t := p.variable()
		return f(t, p.u8())
	}}
}

func vars3(f func(isa.Variable, isa.Variable, isa.Variable) (isa.Instruction, error)) encoder {
	return encoder{3, 3, "<target> <var1> <var2>", func(p *operands) (isa.Instruction, error) {
		t := p.variable()
		v1 := p.variable()
		return f(t, v1, p.variable())
	}}
}

func jump(f func(uint8, isa.Variable, isa.Variable) (isa.Instruction, error)) encoder {
	return encoder{3, 3, "<skip> <var1> <var2>", func(p *operands) (isa.Instruction, error) {
		skip := p.u8()
		v1 := p.variable()
		return f(skip, v1, p.variable())
	}}
}

var mnemonics = map[string]encoder{
	"ramp": {4, 4, "<prescale> <cycles> <up|down> <steps>", func(p *operands) (isa.Instruction, error) {
		ps := p.prescale()
		cycles := p.u8()
		dir := p.direction()
		return isa.Ramp(ps, cycles, dir, p.u8())
	}},
	"rampv": {4, 4, "<prescale> <up|down> <step time var> <increments var>", func(p *operands) (isa.Instruction, error) {
		ps := p.prescale()
		dir := p.direction()
		step := p.variable()
		return isa.RampFromVars(ps, dir == isa.Up, step, p.variable())
	}},
	"pwm": {1, 1, "<value>", func(p *operands) (isa.Instruction, error) {
		return isa.SetPWM(p.u8()), nil
	}},
	"pwmv": {1, 1, "<var>", func(p *operands) (isa.Instruction, error) {
		return isa.SetPWMFromVar(p.variable())
	}},
	"wait": {2, 2, "<prescale> <cycles>", func(p *operands) (isa.Instruction, error) {
		ps := p.prescale()
		return isa.Wait(ps, p.u8())
	}},
	"map": {0, core.NumChannels, "[channel...]", func(p *operands) (isa.Instruction, error) {
		var chs []core.Channel
		for p.left() > 0 {
			chs = append(chs, p.channel())
		}
		return isa.MapChannels(chs...)
	}},
	"mux_ld_start":  muxAddr(isa.MuxLdStart),
	"mux_map_start": muxAddr(isa.MuxMapStart),
	"mux_ld_end":    muxAddr(isa.MuxLdEnd),
	"mux_ld_addr":   muxAddr(isa.MuxLdAddr),
	"mux_map_addr":  muxAddr(isa.MuxMapAddr),
	"mux_sel": {1, 1, "<led 0-16>", func(p *operands) (isa.Instruction, error) {
		return isa.MuxSel(p.u8())
	}},
	"mux_clr":      {0, 0, "", fixed(isa.MuxClr())},
	"mux_map_next": {0, 0, "", fixed(isa.MuxMapNext())},
	"mux_map_prev": {0, 0, "", fixed(isa.MuxMapPrev())},
	"mux_ld_next":  {0, 0, "", fixed(isa.MuxLdNext())},
	"mux_ld_prev":  {0, 0, "", fixed(isa.MuxLdPrev())},
	"rst":          {0, 0, "", fixed(isa.Rst())},
	"branch": {2, 2, "<step> <loop count>", func(p *operands) (isa.Instruction, error) {
		step := p.addr()
		return isa.Branch(step, p.u8())
	}},
	"branchv": {2, 2, "<step> <loop count var>", func(p *operands) (isa.Instruction, error) {
		step := p.addr()
		return isa.BranchVars(step, p.variable())
	}},
	"int": {0, 0, "", fixed(isa.Int())},
	"end": {0, 2, "[int] [reset]", func(p *operands) (isa.Instruction, error) {
		var interrupt, reset bool
		for p.left() > 0 {
			switch s := strings.ToLower(p.take()); s {
			case "int":
				interrupt = true
			case "reset":
				reset = true
			default:
				p.fail(fmt.Errorf("end flag %q: want int or reset: %w", s, core.ErrValidation))
			}
		}
		return isa.End(interrupt, reset), nil
	}},
	"jne":  jump(isa.Jne),
	"jl":   jump(isa.Jl),
	"jge":  jump(isa.Jge),
	"je":   jump(isa.Je),
	"ld":   arith(isa.Ld),
	"add":  arith(isa.AddNumerical),
	"sub":  arith(isa.SubNumerical),
	"addv": vars3(isa.AddVars),
	"subv": vars3(isa.SubVars),
	".word": {1, 1, "<16-bit value>", func(p *operands) (isa.Instruction, error) {
		return isa.FromWord(uint16(p.number(0xFFFF))), nil
	}},
}
