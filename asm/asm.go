// Package asm translates between LP55231 engine programs and a small
// line-oriented assembly language.
//
//	; breathe D1 forever
//	        map     d1
//	        mux_map_start 0
//	loop:   ramp    15.625ms 4 up 255
//	        ramp    15.625ms 4 down 255
//	        branch  loop 0
//
// One instruction per line; ';' and '#' start comments. Operands are
// separated by spaces or commas. Numbers may be decimal, 0x hex, 0b
// binary or 0o octal. A label names the step of the instruction that
// follows it and can stand in for any step or SRAM address operand.
package asm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"lp55231/core"
	"lp55231/isa"
)

// SyntaxError reports a problem on one source line.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error // underlying validation error, if any
}

func (e *SyntaxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Msg, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

type line struct {
	num      int
	mnemonic string
	args     []string
}

// Assemble translates src into a program.
func Assemble(src string) (isa.Program, error) {
	lines, labels, err := scan(src)
	if err != nil {
		return nil, err
	}
	prog := make(isa.Program, 0, len(lines))
	for _, l := range lines {
		enc, ok := mnemonics[l.mnemonic]
		if !ok {
			return nil, &SyntaxError{Line: l.num, Msg: fmt.Sprintf("unknown mnemonic %q", l.mnemonic)}
		}
		if len(l.args) < enc.min || len(l.args) > enc.max {
			return nil, &SyntaxError{Line: l.num, Msg: fmt.Sprintf("%s: %s", l.mnemonic, enc.usage)}
		}
		p := &operands{args: l.args, labels: labels}
		ins, err := enc.fn(p)
		if p.err != nil {
			err = p.err
		}
		if err != nil {
			return nil, &SyntaxError{Line: l.num, Msg: l.mnemonic, Err: err}
		}
		prog = append(prog, ins)
	}
	if err := prog.Validate(); err != nil {
		return nil, &SyntaxError{Line: lines[len(lines)-1].num, Msg: "program", Err: err}
	}
	return prog, nil
}

// scan splits src into instruction lines and resolves label positions.
func scan(src string) ([]line, map[string]int, error) {
	var lines []line
	labels := make(map[string]int)
	sc := bufio.NewScanner(strings.NewReader(src))
	for n := 1; sc.Scan(); n++ {
		text := stripComment(sc.Text())
		for {
			head, rest, ok := strings.Cut(text, ":")
			if !ok {
				break
			}
			name := strings.TrimSpace(head)
			if !isIdent(name) {
				return nil, nil, &SyntaxError{Line: n, Msg: fmt.Sprintf("bad label %q", name)}
			}
			if _, dup := labels[name]; dup {
				return nil, nil, &SyntaxError{Line: n, Msg: fmt.Sprintf("label %q redefined", name)}
			}
			labels[name] = len(lines)
			text = rest
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		})
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, line{num: n, mnemonic: strings.ToLower(fields[0]), args: fields[1:]})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	for name, step := range labels {
		if step > isa.MaxAddress {
			return nil, nil, &SyntaxError{Line: lines[len(lines)-1].num, Msg: fmt.Sprintf("label %q past the end of program memory", name)}
		}
	}
	return lines, labels, nil
}

func stripComment(s string) string {
	if i := strings.IndexAny(s, ";#"); i >= 0 {
		return s[:i]
	}
	return s
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// operands hands out the arguments of one line in order and keeps the
// first conversion error.
type operands struct {
	args   []string
	labels map[string]int
	next   int
	err    error
}

func (p *operands) left() int { return len(p.args) - p.next }

func (p *operands) take() string {
	if p.next >= len(p.args) {
		p.fail(fmt.Errorf("missing operand"))
		return ""
	}
	s := p.args[p.next]
	p.next++
	return s
}

func (p *operands) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *operands) number(max uint64) uint64 {
	s := p.take()
	if p.err != nil {
		return 0
	}
	v, err := parseNumber(s)
	if err != nil {
		p.fail(err)
		return 0
	}
	if v > max {
		p.fail(&core.RangeError{Field: s, Value: int(v), Max: int(max)})
		return 0
	}
	return v
}

func (p *operands) u8() uint8 { return uint8(p.number(0xFF)) }

// addr takes a step or SRAM address, either a number or a label.
func (p *operands) addr() uint8 {
	if p.next < len(p.args) {
		if step, ok := p.labels[p.args[p.next]]; ok {
			p.next++
			return uint8(step)
		}
	}
	return uint8(p.number(0xFF))
}

func (p *operands) variable() isa.Variable {
	v, err := isa.ParseVariable(p.take())
	if err != nil {
		p.fail(err)
	}
	return v
}

func (p *operands) prescale() isa.PreScale {
	switch s := strings.ToLower(p.take()); s {
	case "0.488ms", "0.488":
		return isa.CT0_488
	case "15.625ms", "15.625":
		return isa.CT15_625
	default:
		p.fail(fmt.Errorf("prescale %q: want 0.488ms or 15.625ms", s))
		return 0
	}
}

func (p *operands) direction() isa.Direction {
	switch s := strings.ToLower(p.take()); s {
	case "up", "+":
		return isa.Up
	case "down", "-":
		return isa.Down
	default:
		p.fail(fmt.Errorf("direction %q: want up or down", s))
		return 0
	}
}

func (p *operands) channel() core.Channel {
	ch, err := core.ParseChannel(p.take())
	if err != nil {
		p.fail(err)
	}
	return ch
}

func parseNumber(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}
