package core

// Reset restores the chip to its power-on state.
func (d *Device) Reset() error {
	defer d.tracer.Scope("reset()")()
	// the RESET register reads back zero
	return d.WriteRegisterNoVerify(RegReset, ResetValue)
}

// IsEnabled reports whether CHIP_EN is set.
func (d *Device) IsEnabled() (bool, error) {
	defer d.tracer.Scope("is_enabled()")()
	v, err := d.ReadRegister(RegEnableEngineCntrl1)
	if err != nil {
		return false, err
	}
	return FieldChipEn.IsSet(v), nil
}

// SetEnabled sets or clears CHIP_EN.
func (d *Device) SetEnabled(enabled bool) error {
	defer d.tracer.Scope("set_enabled(%t)", enabled)()
	return d.UpdateRegister(RegEnableEngineCntrl1, FieldChipEn, boolBit(enabled))
}

// MiscSettings reads the MISC register.
func (d *Device) MiscSettings() (Misc, error) {
	defer d.tracer.Scope("misc_settings()")()
	v, err := d.ReadRegister(RegMisc)
	if err != nil {
		return Misc{}, err
	}
	return MiscFromByte(v)
}

// SetMiscSettings overwrites the whole MISC register.
func (d *Device) SetMiscSettings(m Misc) error {
	defer d.tracer.Scope("set_misc_settings(%+v)", m)()
	v, err := m.Byte()
	if err != nil {
		return err
	}
	return d.WriteRegister(RegMisc, v)
}

// SetAutoIncrement sets or clears MISC.EN_AUTO_INCR only.
func (d *Device) SetAutoIncrement(enabled bool) error {
	defer d.tracer.Scope("set_auto_increment(%t)", enabled)()
	return d.UpdateRegister(RegMisc, FieldEnAutoIncr, boolBit(enabled))
}

// SetChannelPWM sets the PWM duty (luminance) of ch.
func (d *Device) SetChannelPWM(ch Channel, pwm uint8) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	defer d.tracer.Scope("set_channel_pwm(%v, %d)", ch, pwm)()
	return d.WriteRegister(PWMRegister(ch), pwm)
}

// SetChannelCurrent sets the output current (brightness) of ch in 100 uA
// steps.
func (d *Device) SetChannelCurrent(ch Channel, current uint8) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	defer d.tracer.Scope("set_channel_current(%v, %d)", ch, current)()
	return d.WriteRegister(CurrentRegister(ch), current)
}

// SetLogBrightness switches ch between linear and logarithmic PWM.
func (d *Device) SetLogBrightness(ch Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	defer d.tracer.Scope("set_log_brightness(%v, %t)", ch, enabled)()
	return d.UpdateRegister(ControlRegister(ch), FieldLogEn, boolBit(enabled))
}

// SetRatiometricDimming enables or disables ratiometric dimming of ch.
func (d *Device) SetRatiometricDimming(ch Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	defer d.tracer.Scope("set_ratiometric_dimming(%v, %t)", ch, enabled)()
	reg, field := RatiometricField(ch)
	return d.UpdateRegister(reg, field, boolBit(enabled))
}

// SetChannelEnabled turns the output of ch on or off.
func (d *Device) SetChannelEnabled(ch Channel, enabled bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	defer d.tracer.Scope("set_channel_enabled(%v, %t)", ch, enabled)()
	reg, field := OnOffField(ch)
	return d.UpdateRegister(reg, field, boolBit(enabled))
}

// AssignToFader maps ch to fader f. A nil fader removes the mapping.
// Channels and faders associate many-to-many through these mappings.
func (d *Device) AssignToFader(ch Channel, f *Fader) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	var bits uint8
	name := "none"
	if f != nil {
		if !f.Valid() {
			return &ValidationError{What: "fader", Value: int(*f), Limit: NumFaders - 1}
		}
		bits = uint8(*f) + 1
		name = f.String()
	}
	defer d.tracer.Scope("assign_to_fader(%v, %s)", ch, name)()
	return d.UpdateRegister(ControlRegister(ch), FieldMapping, bits)
}

// SetFaderIntensity adjusts every channel mapped to f.
func (d *Device) SetFaderIntensity(f Fader, intensity uint8) error {
	if !f.Valid() {
		return &ValidationError{What: "fader", Value: int(f), Limit: NumFaders - 1}
	}
	defer d.tracer.Scope("set_fader_intensity(%v, %d)", f, intensity)()
	return d.WriteRegister(FaderRegister(f), intensity)
}

// ClearInterrupt clears pending engine interrupts by reading STATUS.
func (d *Device) ClearInterrupt() error {
	defer d.tracer.Scope("clear_interrupt()")()
	_, err := d.ReadRegister(RegStatusInterrupt)
	return err
}

// Status reads and decodes STATUS/INTERRUPT. Reading clears the engine
// interrupt flags.
func (d *Device) Status() (Status, error) {
	v, err := d.ReadRegister(RegStatusInterrupt)
	if err != nil {
		return Status{}, err
	}
	return StatusFromByte(v), nil
}

// SetEngineExec sets the execution control of e.
func (d *Device) SetEngineExec(e Engine, x EngineExec) error {
	if err := checkEngine(e); err != nil {
		return err
	}
	defer d.tracer.Scope("set_engine_exec(%v, %v)", e, x)()
	return d.UpdateRegister(RegEnableEngineCntrl1, ExecField(e), uint8(x))
}

// SetEngineModes writes the modes of all three engines in one transfer.
func (d *Device) SetEngineModes(m1, m2, m3 EngineMode) error {
	defer d.tracer.Scope("set_engine_modes(%v, %v, %v)", m1, m2, m3)()
	var v uint8
	for i, m := range []EngineMode{m1, m2, m3} {
		var err error
		if v, err = ModeField(Engine(i)).Apply(uint8(m), v); err != nil {
			return err
		}
	}
	return d.WriteRegister(RegEngineCntrl2, v)
}

// SetAllEnginesMode puts every engine in mode m.
func (d *Device) SetAllEnginesMode(m EngineMode) error {
	return d.SetEngineModes(m, m, m)
}

// SetEngineMode changes the mode of e, leaving the other engines alone.
func (d *Device) SetEngineMode(e Engine, m EngineMode) error {
	if err := checkEngine(e); err != nil {
		return err
	}
	defer d.tracer.Scope("set_engine_mode(%v, %v)", e, m)()
	return d.UpdateRegister(RegEngineCntrl2, ModeField(e), uint8(m))
}

// EngineModes reads the current mode of each engine.
func (d *Device) EngineModes() ([NumEngines]EngineMode, error) {
	var modes [NumEngines]EngineMode
	v, err := d.ReadRegister(RegEngineCntrl2)
	if err != nil {
		return modes, err
	}
	for _, e := range Engines {
		// a 2-bit field always converts
		modes[e], _ = EngineModeFromBits(ModeField(e).Value(v))
	}
	return modes, nil
}

// EngineExecs reads the current execution control of each engine.
func (d *Device) EngineExecs() ([NumEngines]EngineExec, error) {
	var execs [NumEngines]EngineExec
	v, err := d.ReadRegister(RegEnableEngineCntrl1)
	if err != nil {
		return execs, err
	}
	for _, e := range Engines {
		execs[e], _ = EngineExecFromBits(ExecField(e).Value(v))
	}
	return execs, nil
}

// SetEngineEntryPoint sets the program start address of e. Loading a
// program resets all entry points to 0, 8 and 16.
func (d *Device) SetEngineEntryPoint(e Engine, addr uint8) error {
	if err := checkEngine(e); err != nil {
		return err
	}
	if err := checkAddress("entry point", addr); err != nil {
		return err
	}
	defer d.tracer.Scope("set_engine_entry_point(%v, %d)", e, addr)()
	return d.WriteRegister(ProgramStartRegister(e), addr)
}

// EngineEntryPoint reads the program start address of e.
func (d *Device) EngineEntryPoint(e Engine) (uint8, error) {
	if err := checkEngine(e); err != nil {
		return 0, err
	}
	return d.ReadField(ProgramStartRegister(e), FieldProgramAddr)
}

// SetEngineProgramCounter sets the program counter of e. The chip ignores
// the write while the engine runs.
func (d *Device) SetEngineProgramCounter(e Engine, pc uint8) error {
	if err := checkEngine(e); err != nil {
		return err
	}
	if err := checkAddress("program counter", pc); err != nil {
		return err
	}
	defer d.tracer.Scope("set_engine_program_counter(%v, %d)", e, pc)()
	return d.WriteRegister(ProgramCounterRegister(e), pc)
}

// EngineProgramCounter reads the program counter of e.
func (d *Device) EngineProgramCounter(e Engine) (uint8, error) {
	if err := checkEngine(e); err != nil {
		return 0, err
	}
	return d.ReadField(ProgramCounterRegister(e), FieldProgramAddr)
}

// SetVariable writes the global variable D shared by all engines.
func (d *Device) SetVariable(v uint8) error {
	defer d.tracer.Scope("set_variable(%d)", v)()
	return d.WriteRegister(RegVariable, v)
}

func checkChannel(ch Channel) error {
	if !ch.Valid() {
		return &ValidationError{What: "channel", Value: int(ch), Limit: NumChannels - 1}
	}
	return nil
}

func checkEngine(e Engine) error {
	if !e.Valid() {
		return &ValidationError{What: "engine", Value: int(e), Limit: NumEngines - 1}
	}
	return nil
}

func checkAddress(what string, addr uint8) error {
	if int(addr) >= MaxInstructions {
		return &ValidationError{What: what, Value: int(addr), Limit: MaxInstructions - 1}
	}
	return nil
}
