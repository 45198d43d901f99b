//go:build linux

package linux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/platinasystems/i2c"

	"lp55231/core"
	"lp55231/engine"
	"lp55231/isa"
)

// fakeSMBus is an auto-incrementing register file with paged program
// memory behind PROG_MEM_PAGE_SEL.
type fakeSMBus struct {
	regs   [256]byte
	mem    [core.MaxPages * core.PageBytes]byte
	sizes  []i2c.SMBusSize
	blocks []int
	fail   error
	closed bool
}

func (f *fakeSMBus) slot(reg uint8) *byte {
	base := uint8(core.RegProgMemBase)
	if reg >= base && int(reg-base) < core.PageBytes {
		page := int(f.regs[core.RegProgMemPageSel])
		return &f.mem[page*core.PageBytes+int(reg-base)]
	}
	return &f.regs[reg]
}

func (f *fakeSMBus) Do(rw i2c.RW, cmd uint8, size i2c.SMBusSize, data *i2c.SMBusData) error {
	if f.fail != nil {
		return f.fail
	}
	f.sizes = append(f.sizes, size)
	switch size {
	case i2c.ByteData:
		if rw == i2c.Read {
			data[0] = *f.slot(cmd)
		} else {
			*f.slot(cmd) = data[0]
		}
	case i2c.I2CBlockData:
		n := int(data[0])
		if n < 1 || 1+n > len(data) {
			return fmt.Errorf("block length %d does not fit SMBusData", n)
		}
		f.blocks = append(f.blocks, n)
		for i := 0; i < n; i++ {
			if rw == i2c.Read {
				data[1+i] = *f.slot(cmd + uint8(i))
			} else {
				*f.slot(cmd + uint8(i)) = data[1+i]
			}
		}
	}
	return nil
}

func (f *fakeSMBus) Close() error {
	f.closed = true
	return nil
}

var _ core.BlockTransport = (*Bus)(nil)

func TestByteTransfers(t *testing.T) {
	fake := &fakeSMBus{}
	b := &Bus{bus: fake, index: 1, address: 0x32}

	if err := b.WriteRegister(0x3C, 0xA5); err != nil {
		t.Fatal(err)
	}
	if fake.regs[0x3C] != 0xA5 {
		t.Errorf("reg 0x3c = %#x", fake.regs[0x3C])
	}
	v, err := b.ReadRegister(0x3C)
	if err != nil || v != 0xA5 {
		t.Errorf("ReadRegister = %#x, %v", v, err)
	}
}

func TestBlockTransfersAreChunked(t *testing.T) {
	fake := &fakeSMBus{}
	b := &Bus{bus: fake}

	data := make([]byte, 70)
	for i := range data {
		data[i] = byte(i + 1)
	}
	if err := b.WriteBlock(0x10, data); err != nil {
		t.Fatal(err)
	}
	if want := []int{31, 31, 8}; fmt.Sprint(fake.blocks) != fmt.Sprint(want) {
		t.Errorf("write transfers = %v, want %v", fake.blocks, want)
	}
	if !bytes.Equal(fake.regs[0x10:0x10+70], data) {
		t.Error("block write landed wrong")
	}

	got := make([]byte, 70)
	if err := b.ReadBlock(0x10, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadBlock = % x", got)
	}
}

func TestFullPageRoundTrip(t *testing.T) {
	fake := &fakeSMBus{}
	b := &Bus{bus: fake}

	page := make([]byte, core.PageBytes)
	for i := range page {
		page[i] = byte(0xA0 + i)
	}
	if err := b.WriteBlock(uint8(core.RegProgMemBase), page); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(fake.mem[:core.PageBytes], page) {
		t.Errorf("page memory = % x", fake.mem[:core.PageBytes])
	}
	if last := fake.mem[core.PageBytes-1]; last != 0xBF {
		t.Errorf("last page byte = %#x, want 0xbf", last)
	}

	got := make([]byte, core.PageBytes)
	if err := b.ReadBlock(uint8(core.RegProgMemBase), got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, page) {
		t.Errorf("ReadBlock = % x", got)
	}
	if want := []int{31, 1, 31, 1}; fmt.Sprint(fake.blocks) != fmt.Sprint(want) {
		t.Errorf("transfers = %v, want %v", fake.blocks, want)
	}
}

func TestLoaderAutoIncrement(t *testing.T) {
	fake := &fakeSMBus{}
	b := &Bus{bus: fake}
	l := engine.NewLoader(core.NewDevice(b), engine.Options{
		AutoIncrement: true,
		Sleep:         func(context.Context, time.Duration) error { return nil },
	}, nil)

	prog := make(isa.Program, 20)
	for i := range prog {
		prog[i] = isa.FromWord(uint16(0x4000 | i<<4 | 0x0F))
	}
	ctx := context.Background()
	if err := l.Load(ctx, prog); err != nil {
		t.Fatal(err)
	}
	if err := l.Verify(ctx, prog); err != nil {
		t.Fatal(err)
	}
	got, err := l.ReadProgram(ctx, len(prog))
	if err != nil {
		t.Fatal(err)
	}
	for i := range prog {
		if got[i] != prog[i] {
			t.Errorf("word %d = %04x, want %04x", i, got[i].Word(), prog[i].Word())
		}
	}
	if !core.FieldEnAutoIncr.IsSet(fake.regs[core.RegMisc]) {
		t.Error("EN_AUTO_INCR not set")
	}
}

func TestErrorsNameTheRegister(t *testing.T) {
	boom := errors.New("remote I/O error")
	fake := &fakeSMBus{fail: boom}
	b := &Bus{bus: fake, index: 2, address: 0x33}

	_, err := b.ReadRegister(0x3A)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrapped %v", err, boom)
	}
	if want := "i2c-2@0x33 reg 0x3a: remote I/O error"; err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}

	if err := b.Close(); err != nil || !fake.closed {
		t.Errorf("Close = %v, closed %t", err, fake.closed)
	}
}

func TestOpenRejectsWideAddress(t *testing.T) {
	if _, err := Open(0, 0x80); err == nil {
		t.Error("10-bit address accepted")
	}
}
