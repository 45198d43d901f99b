package isa

import (
	"fmt"

	"lp55231/core"
)

// Program is an ordered list of instructions loaded from address 0.
type Program []Instruction

// Page is a run of up to 16 instructions written behind one page select.
type Page struct {
	Number       int
	Instructions []Instruction
}

// Validate checks that p fits in program memory.
func (p Program) Validate() error {
	if len(p) > core.MaxInstructions {
		return &core.ValidationError{What: "program length", Value: len(p), Limit: core.MaxInstructions}
	}
	return nil
}

// Pages partitions p into 0-based pages of at most 16 instructions. The
// last page holds the remainder. An empty program has no pages.
func (p Program) Pages() ([]Page, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var pages []Page
	for start := 0; start < len(p); start += core.InstructionsPerPage {
		end := min(start+core.InstructionsPerPage, len(p))
		pages = append(pages, Page{
			Number:       start / core.InstructionsPerPage,
			Instructions: p[start:end],
		})
	}
	return pages, nil
}

// Bytes returns the instructions of the page as they sit in program
// memory, MSB first.
func (pg Page) Bytes() []byte {
	return Program(pg.Instructions).Bytes()
}

// Bytes returns the program as big-endian words.
func (p Program) Bytes() []byte {
	b := make([]byte, 0, len(p)*core.BytesPerInstruction)
	for _, ins := range p {
		b = append(b, ins.MSB, ins.LSB)
	}
	return b
}

// ProgramFromBytes is the inverse of Program.Bytes. A trailing odd byte is
// rejected.
func ProgramFromBytes(b []byte) (Program, error) {
	if len(b)%core.BytesPerInstruction != 0 {
		return nil, fmt.Errorf("program bytes: odd length %d: %w", len(b), core.ErrValidation)
	}
	p := make(Program, 0, len(b)/core.BytesPerInstruction)
	for i := 0; i < len(b); i += core.BytesPerInstruction {
		p = append(p, Instruction{MSB: b[i], LSB: b[i+1]})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidatePage checks a page number.
func ValidatePage(page int) error {
	if page < 0 || page >= core.MaxPages {
		return &core.ValidationError{What: "page", Value: page, Limit: core.MaxPages - 1}
	}
	return nil
}

// ValidateIndex checks an instruction index within a page.
func ValidateIndex(index int) error {
	if index < 0 || index >= core.InstructionsPerPage {
		return &core.ValidationError{What: "instruction index", Value: index, Limit: core.InstructionsPerPage - 1}
	}
	return nil
}
