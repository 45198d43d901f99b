package core

import (
	"errors"
	"testing"

	"lp55231/trace"
)

// fakeBus is a plain register file recording every access.
type fakeBus struct {
	regs     [256]uint8
	reads    []uint8
	writes   [][2]uint8
	stuck    map[uint8]uint8 // registers that always read back this value
	failNext error
}

func (b *fakeBus) ReadRegister(reg uint8) (uint8, error) {
	if err := b.failNext; err != nil {
		b.failNext = nil
		return 0, err
	}
	b.reads = append(b.reads, reg)
	if v, ok := b.stuck[reg]; ok {
		return v, nil
	}
	return b.regs[reg], nil
}

func (b *fakeBus) WriteRegister(reg, value uint8) error {
	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	b.writes = append(b.writes, [2]uint8{reg, value})
	b.regs[reg] = value
	return nil
}

type fakeBlockBus struct {
	fakeBus
	blocks int
}

func (b *fakeBlockBus) ReadBlock(reg uint8, buf []byte) error {
	b.blocks++
	copy(buf, b.regs[reg:])
	return nil
}

func (b *fakeBlockBus) WriteBlock(reg uint8, data []byte) error {
	b.blocks++
	copy(b.regs[reg:], data)
	return nil
}

func TestDeviceTransportError(t *testing.T) {
	cause := errors.New("nack")
	bus := &fakeBus{failNext: cause}
	d := NewDevice(bus)

	_, err := d.ReadRegister(RegMisc)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if te.Op != "read" || te.Register != RegMisc {
		t.Errorf("TransportError = %+v", te)
	}
	if !errors.Is(err, cause) {
		t.Errorf("TransportError does not unwrap to cause")
	}
}

func TestDeviceVerifyWrites(t *testing.T) {
	bus := &fakeBus{stuck: map[uint8]uint8{uint8(RegMasterFader1): 0}}
	d := NewDevice(bus, WithVerifyWrites(true))

	if err := d.WriteRegister(RegMasterFader2, 0x80); err != nil {
		t.Fatalf("verified write failed: %v", err)
	}

	err := d.WriteRegister(RegMasterFader1, 0x80)
	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *VerificationError", err)
	}
	if ve.Expected != 0x80 || ve.Observed != 0 || ve.Register != RegMasterFader1 {
		t.Errorf("VerificationError = %+v", ve)
	}
	if !errors.Is(err, ErrVerification) {
		t.Error("VerificationError does not match ErrVerification")
	}

	// RESET reads back zero; Reset must not verify it
	bus.stuck[uint8(RegReset)] = 0
	if err := d.Reset(); err != nil {
		t.Errorf("Reset with verification: %v", err)
	}
}

func TestUpdateRegisterSkipsUnchanged(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)
	bus.regs[RegEnableEngineCntrl1] = 0b0100_0000

	if err := d.SetEnabled(true); err != nil {
		t.Fatal(err)
	}
	if len(bus.writes) != 0 {
		t.Errorf("unchanged update wrote %v", bus.writes)
	}
	if err := d.SetEnabled(false); err != nil {
		t.Fatal(err)
	}
	if len(bus.writes) != 1 || bus.regs[RegEnableEngineCntrl1] != 0 {
		t.Errorf("writes = %v", bus.writes)
	}
}

func TestBlockRequiresSupport(t *testing.T) {
	d := NewDevice(&fakeBus{})
	if d.SupportsBlock() {
		t.Error("plain bus reports block support")
	}
	if err := d.WriteBlock(RegProgMemBase, []byte{1, 2}); !errors.Is(err, ErrNoBlock) {
		t.Errorf("WriteBlock error = %v, want ErrNoBlock", err)
	}

	bb := &fakeBlockBus{}
	d = NewDevice(bb, WithVerifyWrites(true))
	if !d.SupportsBlock() {
		t.Fatal("block bus not detected")
	}
	if err := d.WriteBlock(RegProgMemBase, []byte{0x9D, 0x80}); err != nil {
		t.Fatal(err)
	}
	if bb.regs[RegProgMemBase+1] != 0x80 {
		t.Errorf("block write landed wrong: % x", bb.regs[RegProgMemBase:RegProgMemBase+2])
	}
	if bb.blocks != 2 {
		t.Errorf("verified block write made %d transfers, want 2", bb.blocks)
	}
}

type countLogger struct{ n int }

func (c *countLogger) Log(trace.Event) { c.n++ }

func TestDeviceTracesTraffic(t *testing.T) {
	logger := &countLogger{}
	d := NewDevice(&fakeBus{}, WithTracer(trace.New(logger)))
	if err := d.SetChannelPWM(D1, 10); err != nil {
		t.Fatal(err)
	}
	// scope enter, write, scope exit
	if logger.n != 3 {
		t.Errorf("traced %d events, want 3", logger.n)
	}
}
