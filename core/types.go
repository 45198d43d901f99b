package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel is one of the nine LED outputs
type Channel uint8

const (
	D1 Channel = iota
	D2
	D3
	D4
	D5
	D6
	D7
	D8
	D9
)

// NumChannels is the number of LED outputs
const NumChannels = 9

// Channels lists D1 through D9 in order.
var Channels = []Channel{D1, D2, D3, D4, D5, D6, D7, D8, D9}

func (c Channel) String() string { return "D" + strconv.Itoa(int(c)+1) }

// Valid reports whether c names an existing output.
func (c Channel) Valid() bool { return c < NumChannels }

// ParseChannel accepts "D1".."D9" (case-insensitive) or "1".."9".
func ParseChannel(s string) (Channel, error) {
	n, err := parseIndexed(s, "d", NumChannels)
	if err != nil {
		return 0, fmt.Errorf("channel %q: %w", s, err)
	}
	return Channel(n), nil
}

// Fader is one of the three master faders
type Fader uint8

const (
	F1 Fader = iota
	F2
	F3
)

// NumFaders is the number of master faders
const NumFaders = 3

func (f Fader) String() string { return "F" + strconv.Itoa(int(f)+1) }

// Valid reports whether f names an existing fader.
func (f Fader) Valid() bool { return f < NumFaders }

// ParseFader accepts "F1".."F3" or "1".."3".
func ParseFader(s string) (Fader, error) {
	n, err := parseIndexed(s, "f", NumFaders)
	if err != nil {
		return 0, fmt.Errorf("fader %q: %w", s, err)
	}
	return Fader(n), nil
}

// Engine is one of the three programming engines
type Engine uint8

const (
	E1 Engine = iota
	E2
	E3
)

// NumEngines is the number of programming engines
const NumEngines = 3

// Engines lists E1 through E3 in order.
var Engines = []Engine{E1, E2, E3}

func (e Engine) String() string { return "E" + strconv.Itoa(int(e)+1) }

// Valid reports whether e names an existing engine.
func (e Engine) Valid() bool { return e < NumEngines }

// ParseEngine accepts "E1".."E3" or "1".."3".
func ParseEngine(s string) (Engine, error) {
	n, err := parseIndexed(s, "e", NumEngines)
	if err != nil {
		return 0, fmt.Errorf("engine %q: %w", s, err)
	}
	return Engine(n), nil
}

// parseIndexed parses a 1-based identifier with an optional letter prefix.
func parseIndexed(s, prefix string, count int) (int, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), prefix)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrValidation
	}
	if n < 1 || n > count {
		return 0, &ValidationError{What: "identifier", Value: n, Limit: count}
	}
	return n - 1, nil
}

// EngineExec is the program execution control of an engine
type EngineExec uint8

const (
	ExecHold EngineExec = iota
	ExecStep
	ExecFree
	ExecExecuteOnce
)

var execNames = []string{"hold", "step", "free", "once"}

func (x EngineExec) String() string {
	if int(x) < len(execNames) {
		return execNames[x]
	}
	return "exec(" + strconv.Itoa(int(x)) + ")"
}

// EngineExecFromBits converts the 2-bit exec field value.
func EngineExecFromBits(v uint8) (EngineExec, error) {
	if v > uint8(ExecExecuteOnce) {
		return 0, &RangeError{Field: "engine exec", Value: int(v), Max: int(ExecExecuteOnce)}
	}
	return EngineExec(v), nil
}

// ParseEngineExec accepts the names returned by EngineExec.String.
func ParseEngineExec(s string) (EngineExec, error) {
	for i, name := range execNames {
		if strings.EqualFold(s, name) {
			return EngineExec(i), nil
		}
	}
	return 0, fmt.Errorf("engine exec %q: %w", s, ErrValidation)
}

// EngineMode is the operation mode (state) of an engine. It lives in the
// chip only and is never cached by the driver.
type EngineMode uint8

const (
	ModeDisabled EngineMode = iota
	ModeLoadProgram
	ModeRunProgram
	ModeHalt
)

var modeNames = []string{"disabled", "load", "run", "halt"}

func (m EngineMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// EngineModeFromBits converts the 2-bit mode field value.
func EngineModeFromBits(v uint8) (EngineMode, error) {
	if v > uint8(ModeHalt) {
		return 0, &RangeError{Field: "engine mode", Value: int(v), Max: int(ModeHalt)}
	}
	return EngineMode(v), nil
}

// ParseEngineMode accepts the names returned by EngineMode.String.
func ParseEngineMode(s string) (EngineMode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return EngineMode(i), nil
		}
	}
	return 0, fmt.Errorf("engine mode %q: %w", s, ErrValidation)
}

// ChargePumpMode selects the charge pump operation
type ChargePumpMode uint8

const (
	ChargePumpOff ChargePumpMode = iota
	ChargePumpBypass
	ChargePumpBoosted
	ChargePumpAuto
)

var chargePumpNames = []string{"off", "bypass", "boosted", "auto"}

func (m ChargePumpMode) String() string {
	if int(m) < len(chargePumpNames) {
		return chargePumpNames[m]
	}
	return "cp(" + strconv.Itoa(int(m)) + ")"
}

// ChargePumpModeFromBits converts the 2-bit CP_MODE field value.
func ChargePumpModeFromBits(v uint8) (ChargePumpMode, error) {
	if v > uint8(ChargePumpAuto) {
		return 0, &RangeError{Field: "charge pump mode", Value: int(v), Max: int(ChargePumpAuto)}
	}
	return ChargePumpMode(v), nil
}

// ClockSelection selects the chip clock source
type ClockSelection uint8

const (
	ClockForceExternal ClockSelection = iota
	ClockForceInternal
	ClockAutomatic
	ClockPreferInternal
)

var clockNames = []string{"external", "internal", "automatic", "prefer-internal"}

func (c ClockSelection) String() string {
	if int(c) < len(clockNames) {
		return clockNames[c]
	}
	return "clock(" + strconv.Itoa(int(c)) + ")"
}

// ClockSelectionFromBits converts the 2-bit CLK_DET_EN/INT_CLK_EN value.
func ClockSelectionFromBits(v uint8) (ClockSelection, error) {
	if v > uint8(ClockPreferInternal) {
		return 0, &RangeError{Field: "clock selection", Value: int(v), Max: int(ClockPreferInternal)}
	}
	return ClockSelection(v), nil
}

// Misc holds the MISC register settings.
type Misc struct {
	AutoIncrement  bool           // EN_AUTO_INCR
	Powersave      bool           // POWERSAVE_EN
	ChargePump     ChargePumpMode // CP_MODE
	PWMPowersave   bool           // PWM_PS_EN
	ClockSelection ClockSelection // CLK_DET_EN and INT_CLK_EN
}

// Byte encodes the settings into a MISC register value.
func (m Misc) Byte() (uint8, error) {
	var v uint8
	var err error
	for _, set := range []struct {
		f BitField
		x uint8
	}{
		{FieldEnAutoIncr, boolBit(m.AutoIncrement)},
		{FieldPowersaveEn, boolBit(m.Powersave)},
		{FieldCPMode, uint8(m.ChargePump)},
		{FieldPWMPsEn, boolBit(m.PWMPowersave)},
		{FieldClkDetEn, uint8(m.ClockSelection)},
	} {
		if v, err = set.f.Apply(set.x, v); err != nil {
			return 0, err
		}
	}
	return v, nil
}

// MiscFromByte decodes a MISC register value.
func MiscFromByte(v uint8) (Misc, error) {
	cp, err := ChargePumpModeFromBits(FieldCPMode.Value(v))
	if err != nil {
		return Misc{}, err
	}
	clk, err := ClockSelectionFromBits(FieldClkDetEn.Value(v))
	if err != nil {
		return Misc{}, err
	}
	return Misc{
		AutoIncrement:  FieldEnAutoIncr.IsSet(v),
		Powersave:      FieldPowersaveEn.IsSet(v),
		ChargePump:     cp,
		PWMPowersave:   FieldPWMPsEn.IsSet(v),
		ClockSelection: clk,
	}, nil
}

// Status is the decoded STATUS/INTERRUPT register.
type Status struct {
	LEDTestDone  bool
	MaskBusy     bool
	StartupBusy  bool
	EngineBusy   bool
	ExtClockUsed bool
	Interrupts   [NumEngines]bool
}

// StatusFromByte decodes a STATUS/INTERRUPT register value.
func StatusFromByte(v uint8) Status {
	return Status{
		LEDTestDone:  FieldLEDTestMeasDone.IsSet(v),
		MaskBusy:     FieldMaskBusy.IsSet(v),
		StartupBusy:  FieldStartupBusy.IsSet(v),
		EngineBusy:   FieldEngineBusy.IsSet(v),
		ExtClockUsed: FieldExtClkUsed.IsSet(v),
		Interrupts: [NumEngines]bool{
			FieldEng1Int.IsSet(v),
			FieldEng2Int.IsSet(v),
			FieldEng3Int.IsSet(v),
		},
	}
}
