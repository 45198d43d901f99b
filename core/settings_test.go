package core

import (
	"errors"
	"testing"
)

func TestChannelSetters(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)

	if err := d.SetChannelPWM(D3, 0xAB); err != nil {
		t.Fatal(err)
	}
	if err := d.SetChannelCurrent(D9, 0x7F); err != nil {
		t.Fatal(err)
	}
	if bus.regs[0x18] != 0xAB || bus.regs[0x2E] != 0x7F {
		t.Errorf("pwm/current registers = %02x %02x", bus.regs[0x18], bus.regs[0x2E])
	}

	if err := d.SetLogBrightness(D2, true); err != nil {
		t.Fatal(err)
	}
	if bus.regs[0x07] != 0b0010_0000 {
		t.Errorf("D2_CONTROL = %08b", bus.regs[0x07])
	}

	f := F3
	if err := d.AssignToFader(D2, &f); err != nil {
		t.Fatal(err)
	}
	if bus.regs[0x07] != 0b1110_0000 {
		t.Errorf("D2_CONTROL after fader = %08b", bus.regs[0x07])
	}
	if err := d.AssignToFader(D2, nil); err != nil {
		t.Fatal(err)
	}
	if bus.regs[0x07] != 0b0010_0000 {
		t.Errorf("D2_CONTROL after unassign = %08b", bus.regs[0x07])
	}

	if err := d.SetChannelPWM(Channel(9), 1); !errors.Is(err, ErrValidation) {
		t.Errorf("SetChannelPWM(9) error = %v", err)
	}
}

func TestOutputBits(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)
	bus.regs[RegOutputOnOffLSB] = 0b1000_0001

	if err := d.SetChannelEnabled(D4, true); err != nil {
		t.Fatal(err)
	}
	if bus.regs[RegOutputOnOffLSB] != 0b1000_1001 {
		t.Errorf("ON_OFF LSB = %08b", bus.regs[RegOutputOnOffLSB])
	}
	if err := d.SetChannelEnabled(D9, true); err != nil {
		t.Fatal(err)
	}
	if bus.regs[RegOutputOnOffMSB] != 1 {
		t.Errorf("ON_OFF MSB = %08b", bus.regs[RegOutputOnOffMSB])
	}

	bus.regs[RegOutputDirectRatiometricMSB] = 0b1000_0000
	if err := d.SetRatiometricDimming(D9, true); err != nil {
		t.Fatal(err)
	}
	// other bits of the MSB register are preserved
	if bus.regs[RegOutputDirectRatiometricMSB] != 0b1000_0001 {
		t.Errorf("RATIOMETRIC MSB = %08b", bus.regs[RegOutputDirectRatiometricMSB])
	}
	if err := d.SetRatiometricDimming(D1, true); err != nil {
		t.Fatal(err)
	}
	if bus.regs[RegOutputDirectRatiometricLSB] != 1 {
		t.Errorf("RATIOMETRIC LSB = %08b", bus.regs[RegOutputDirectRatiometricLSB])
	}
}

func TestEngineModes(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)

	if err := d.SetEngineModes(ModeRunProgram, ModeHalt, ModeLoadProgram); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[RegEngineCntrl2]; got != 0b0010_1101 {
		t.Errorf("ENGINE_CNTRL2 = %08b, want 00101101", got)
	}
	modes, err := d.EngineModes()
	if err != nil {
		t.Fatal(err)
	}
	if modes != [NumEngines]EngineMode{ModeRunProgram, ModeHalt, ModeLoadProgram} {
		t.Errorf("EngineModes() = %v", modes)
	}

	if err := d.SetAllEnginesMode(ModeLoadProgram); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[RegEngineCntrl2]; got != 0b0001_0101 {
		t.Errorf("all load = %08b, want 00010101", got)
	}

	if err := d.SetEngineMode(E3, ModeDisabled); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[RegEngineCntrl2]; got != 0b0001_0100 {
		t.Errorf("after E3 disable = %08b", got)
	}
}

func TestEngineExec(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)
	bus.regs[RegEnableEngineCntrl1] = 0b0100_0000

	if err := d.SetEngineExec(E2, ExecFree); err != nil {
		t.Fatal(err)
	}
	if got := bus.regs[RegEnableEngineCntrl1]; got != 0b0100_1000 {
		t.Errorf("ENABLE_ENGINE_CNTRL1 = %08b", got)
	}
	execs, err := d.EngineExecs()
	if err != nil {
		t.Fatal(err)
	}
	if execs[E2] != ExecFree || execs[E1] != ExecHold {
		t.Errorf("EngineExecs() = %v", execs)
	}
}

func TestAddressLimits(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)

	if err := d.SetEngineEntryPoint(E2, 95); err != nil {
		t.Errorf("entry point 95: %v", err)
	}
	if err := d.SetEngineEntryPoint(E2, 96); !errors.Is(err, ErrValidation) {
		t.Errorf("entry point 96 error = %v", err)
	}
	if err := d.SetEngineProgramCounter(E1, 96); !errors.Is(err, ErrValidation) {
		t.Errorf("pc 96 error = %v", err)
	}
	if err := d.SetEngineProgramCounter(Engine(3), 0); !errors.Is(err, ErrValidation) {
		t.Errorf("engine 3 error = %v", err)
	}
	if len(bus.writes) != 1 {
		t.Errorf("rejected calls touched the bus: %v", bus.writes)
	}

	bus.regs[RegEngine1PC] = 0x85
	pc, err := d.EngineProgramCounter(E1)
	if err != nil || pc != 5 {
		t.Errorf("EngineProgramCounter = %d, %v", pc, err)
	}
}

func TestMiscSetters(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)

	if err := d.SetMiscSettings(Misc{ChargePump: ChargePumpAuto, ClockSelection: ClockForceInternal}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetAutoIncrement(true); err != nil {
		t.Fatal(err)
	}
	m, err := d.MiscSettings()
	if err != nil {
		t.Fatal(err)
	}
	want := Misc{AutoIncrement: true, ChargePump: ChargePumpAuto, ClockSelection: ClockForceInternal}
	if m != want {
		t.Errorf("MiscSettings() = %+v, want %+v", m, want)
	}
}

func TestStatusAndInterrupt(t *testing.T) {
	bus := &fakeBus{}
	d := NewDevice(bus)
	bus.regs[RegStatusInterrupt] = 0b0001_0010

	s, err := d.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !s.EngineBusy || !s.Interrupts[E2] {
		t.Errorf("Status() = %+v", s)
	}
	if err := d.ClearInterrupt(); err != nil {
		t.Fatal(err)
	}
	if bus.reads[len(bus.reads)-1] != uint8(RegStatusInterrupt) {
		t.Error("ClearInterrupt did not read STATUS")
	}
}
