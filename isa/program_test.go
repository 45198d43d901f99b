package isa

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"lp55231/core"
)

func program(n int) Program {
	p := make(Program, n)
	for i := range p {
		p[i] = SetPWM(uint8(i))
	}
	return p
}

func TestPages(t *testing.T) {
	tests := []struct {
		n     int
		sizes []int
	}{
		{0, nil},
		{1, []int{1}},
		{16, []int{16}},
		{20, []int{16, 4}},
		{96, []int{16, 16, 16, 16, 16, 16}},
	}
	for _, tt := range tests {
		pages, err := program(tt.n).Pages()
		if err != nil {
			t.Errorf("%d instructions: %v", tt.n, err)
			continue
		}
		if len(pages) != len(tt.sizes) {
			t.Errorf("%d instructions: %d pages, want %d", tt.n, len(pages), len(tt.sizes))
			continue
		}
		for i, pg := range pages {
			if pg.Number != i {
				t.Errorf("%d instructions: page %d numbered %d", tt.n, i, pg.Number)
			}
			if len(pg.Instructions) != tt.sizes[i] {
				t.Errorf("%d instructions: page %d holds %d", tt.n, i, len(pg.Instructions))
			}
			if pg.Instructions[0].LSB != uint8(i*16) {
				t.Errorf("%d instructions: page %d starts at %d", tt.n, i, pg.Instructions[0].LSB)
			}
		}
	}
}

func TestPagesRejectsOversize(t *testing.T) {
	_, err := program(97).Pages()
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *core.ValidationError", err)
	}
	if ve.Value != 97 || ve.Limit != 96 {
		t.Errorf("ValidationError = %+v", ve)
	}
}

func TestBytes(t *testing.T) {
	p := Program{End(false, false), SetPWM(0x12)}
	want := []byte{0xC0, 0x00, 0x40, 0x12}
	if got := p.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = % x, want % x", got, want)
	}
	back, err := ProgramFromBytes(want)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 || back[1] != p[1] {
		t.Errorf("ProgramFromBytes = %v", back)
	}
	_, err = ProgramFromBytes([]byte{1, 2, 3, 4, 5})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("odd length error = %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "odd length 5") {
		t.Errorf("odd length message = %q", err)
	}
}

func TestValidatePageAndIndex(t *testing.T) {
	if err := ValidatePage(5); err != nil {
		t.Errorf("page 5: %v", err)
	}
	if err := ValidatePage(6); !errors.Is(err, core.ErrValidation) {
		t.Errorf("page 6 error = %v", err)
	}
	if err := ValidateIndex(15); err != nil {
		t.Errorf("index 15: %v", err)
	}
	if err := ValidateIndex(16); !errors.Is(err, core.ErrValidation) {
		t.Errorf("index 16 error = %v", err)
	}
}

func TestBuilder(t *testing.T) {
	var b Builder
	b.MapChannels(core.D1, core.D2).
		SetPWM(0).
		Ramp(CT0_488, 4, Up, 255).
		Wait(CT15_625, 10).
		Branch(1, 0).
		End(true, false)
	prog, err := b.Program()
	if err != nil {
		t.Fatal(err)
	}
	if len(prog) != 6 || prog[0].Word() != 0x0003 || prog[5].Word() != 0xD000 {
		t.Errorf("program = %v", prog)
	}

	b = Builder{}
	b.SetPWM(1).Wait(CT0_488, 0).SetPWM(2)
	if _, err := b.Program(); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Program() error = %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("builder kept appending after error: %d", b.Len())
	}
}
