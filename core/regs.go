package core

import "fmt"

// LP55231 Register Definitions
// Based on the LP55231 datasheet, sections 7.6.1 and 7.6.2

// Register is an 8-bit register address on the chip.
type Register uint8

// LP55231 Register Addresses
const (
	RegEnableEngineCntrl1         Register = 0x00 // Chip enable and engine execution control
	RegEngineCntrl2               Register = 0x01 // Engine operation modes
	RegOutputDirectRatiometricMSB Register = 0x02 // D9 ratiometric dimming
	RegOutputDirectRatiometricLSB Register = 0x03 // D1-D8 ratiometric dimming
	RegOutputOnOffMSB             Register = 0x04 // D9 on/off
	RegOutputOnOffLSB             Register = 0x05 // D1-D8 on/off
	RegD1Control                  Register = 0x06 // D1-D9 control at 0x06-0x0E
	RegD1PWM                      Register = 0x16 // D1-D9 PWM at 0x16-0x1E
	RegD1CurrentControl           Register = 0x26 // D1-D9 current at 0x26-0x2E
	RegMisc                       Register = 0x36 // Auto increment, power save, charge pump, clock
	RegEngine1PC                  Register = 0x37 // Engine program counters at 0x37-0x39
	RegEngine2PC                  Register = 0x38
	RegEngine3PC                  Register = 0x39
	RegStatusInterrupt            Register = 0x3A // Status flags, reading clears interrupts
	RegIntGPO                     Register = 0x3B
	RegVariable                   Register = 0x3C // Global variable D
	RegReset                      Register = 0x3D // Write 0xFF to reset
	RegTempADCControl             Register = 0x3E
	RegTemperatureRead            Register = 0x3F
	RegTemperatureWrite           Register = 0x40
	RegLEDTestControl             Register = 0x41
	RegLEDTestADC                 Register = 0x42
	RegEngine1VariableA           Register = 0x45
	RegEngine2VariableA           Register = 0x46
	RegEngine3VariableA           Register = 0x47
	RegMasterFader1               Register = 0x48 // Master faders at 0x48-0x4A
	RegMasterFader2               Register = 0x49
	RegMasterFader3               Register = 0x4A
	RegEng1ProgStartAddr          Register = 0x4C // Engine entry points at 0x4C-0x4E
	RegEng2ProgStartAddr          Register = 0x4D
	RegEng3ProgStartAddr          Register = 0x4E
	RegProgMemPageSel             Register = 0x4F // Program memory page select
	RegProgMemBase                Register = 0x50 // 16 instructions x 2 bytes per page
)

// Program memory geometry
const (
	MaxInstructions     = 96 // 6 pages of 16 instructions
	InstructionsPerPage = 16
	MaxPages            = 6
	BytesPerInstruction = 2
	PageBytes           = InstructionsPerPage * BytesPerInstruction
)

// Register fields, sorted by the register they apply to.
// Not a comprehensive list.
var (
	// 0x00 ENABLE / ENGINE CNTRL1
	FieldChipEn      = mustField(0b0100_0000)
	FieldEngine1Exec = mustField(0b0011_0000)
	FieldEngine2Exec = mustField(0b0000_1100)
	FieldEngine3Exec = mustField(0b0000_0011)

	// 0x01 ENGINE CNTRL2
	FieldEngine1Mode = mustField(0b0011_0000)
	FieldEngine2Mode = mustField(0b0000_1100)
	FieldEngine3Mode = mustField(0b0000_0011)

	// 0x06-0x0E Dn CONTROL
	FieldMapping = mustField(0b1100_0000)
	FieldLogEn   = mustField(0b0010_0000)

	// 0x36 MISC
	FieldEnAutoIncr  = mustField(0b0100_0000)
	FieldPowersaveEn = mustField(0b0010_0000)
	FieldCPMode      = mustField(0b0001_1000)
	FieldPWMPsEn     = mustField(0b0000_0100)
	FieldClkDetEn    = mustField(0b0000_0011)

	// 0x3A STATUS / INTERRUPT
	FieldLEDTestMeasDone = mustField(0b1000_0000)
	FieldMaskBusy        = mustField(0b0100_0000)
	FieldStartupBusy     = mustField(0b0010_0000)
	FieldEngineBusy      = mustField(0b0001_0000)
	FieldExtClkUsed      = mustField(0b0000_1000)
	FieldEng1Int         = mustField(0b0000_0100)
	FieldEng2Int         = mustField(0b0000_0010)
	FieldEng3Int         = mustField(0b0000_0001)

	// 0x3D RESET
	FieldReset = mustField(0b1111_1111)

	// 0x4F PROG MEM PAGE SELECT
	FieldPageSel = mustField(0b0000_0111)

	// 0x4C-0x4E and 0x37-0x39 hold 7-bit program addresses
	FieldProgramAddr = mustField(0b0111_1111)
)

// ResetValue is written to RegReset to reset the chip.
const ResetValue = 0b1111_1111

var registerNames = map[Register]string{
	RegEnableEngineCntrl1:         "ENABLE_ENGINE_CNTRL1",
	RegEngineCntrl2:               "ENGINE_CNTRL2",
	RegOutputDirectRatiometricMSB: "OUTPUT_DIRECT_RATIOMETRIC_MSB",
	RegOutputDirectRatiometricLSB: "OUTPUT_DIRECT_RATIOMETRIC_LSB",
	RegOutputOnOffMSB:             "OUTPUT_ON_OFF_CONTROL_MSB",
	RegOutputOnOffLSB:             "OUTPUT_ON_OFF_CONTROL_LSB",
	RegMisc:                       "MISC",
	RegEngine1PC:                  "ENGINE1_PC",
	RegEngine2PC:                  "ENGINE2_PC",
	RegEngine3PC:                  "ENGINE3_PC",
	RegStatusInterrupt:            "STATUS_INTERRUPT",
	RegIntGPO:                     "INT_GPO",
	RegVariable:                   "VARIABLE",
	RegReset:                      "RESET",
	RegTempADCControl:             "TEMP_ADC_CONTROL",
	RegTemperatureRead:            "TEMPERATURE_READ",
	RegTemperatureWrite:           "TEMPERATURE_WRITE",
	RegLEDTestControl:             "LED_TEST_CONTROL",
	RegLEDTestADC:                 "LED_TEST_ADC",
	RegEngine1VariableA:           "ENGINE1_VARIABLE_A",
	RegEngine2VariableA:           "ENGINE2_VARIABLE_A",
	RegEngine3VariableA:           "ENGINE3_VARIABLE_A",
	RegMasterFader1:               "MASTER_FADER1",
	RegMasterFader2:               "MASTER_FADER2",
	RegMasterFader3:               "MASTER_FADER3",
	RegEng1ProgStartAddr:          "ENG1_PROG_START_ADDR",
	RegEng2ProgStartAddr:          "ENG2_PROG_START_ADDR",
	RegEng3ProgStartAddr:          "ENG3_PROG_START_ADDR",
	RegProgMemPageSel:             "PROG_MEM_PAGE_SEL",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	switch {
	case r >= RegD1Control && r < RegD1Control+NumChannels:
		return fmt.Sprintf("D%d_CONTROL", int(r-RegD1Control)+1)
	case r >= RegD1PWM && r < RegD1PWM+NumChannels:
		return fmt.Sprintf("D%d_PWM", int(r-RegD1PWM)+1)
	case r >= RegD1CurrentControl && r < RegD1CurrentControl+NumChannels:
		return fmt.Sprintf("D%d_CURRENT_CONTROL", int(r-RegD1CurrentControl)+1)
	case r >= RegProgMemBase && int(r) < int(RegProgMemBase)+PageBytes:
		return fmt.Sprintf("PROG_MEM_%02d", int(r-RegProgMemBase))
	}
	return fmt.Sprintf("REG_%02X", uint8(r))
}

// ControlRegister returns the Dn CONTROL register for ch.
func ControlRegister(ch Channel) Register { return RegD1Control + Register(ch) }

// PWMRegister returns the Dn PWM register for ch.
func PWMRegister(ch Channel) Register { return RegD1PWM + Register(ch) }

// CurrentRegister returns the Dn CURRENT CONTROL register for ch.
func CurrentRegister(ch Channel) Register { return RegD1CurrentControl + Register(ch) }

// FaderRegister returns the MASTER FADER register for f.
func FaderRegister(f Fader) Register { return RegMasterFader1 + Register(f) }

// ProgramStartRegister returns the ENGn PROG START ADDR register for e.
func ProgramStartRegister(e Engine) Register { return RegEng1ProgStartAddr + Register(e) }

// ProgramCounterRegister returns the ENGINEn PC register for e.
func ProgramCounterRegister(e Engine) Register { return RegEngine1PC + Register(e) }

// ExecField returns the execution control field of e in RegEnableEngineCntrl1.
func ExecField(e Engine) BitField {
	switch e {
	case E1:
		return FieldEngine1Exec
	case E2:
		return FieldEngine2Exec
	default:
		return FieldEngine3Exec
	}
}

// ModeField returns the operation mode field of e in RegEngineCntrl2.
func ModeField(e Engine) BitField {
	switch e {
	case E1:
		return FieldEngine1Mode
	case E2:
		return FieldEngine2Mode
	default:
		return FieldEngine3Mode
	}
}

// RatiometricField returns the ratiometric dimming bit of ch and the
// register holding it.
func RatiometricField(ch Channel) (Register, BitField) {
	if ch == D9 {
		return RegOutputDirectRatiometricMSB, mustField(0b0000_0001)
	}
	return RegOutputDirectRatiometricLSB, BitField(1 << uint(ch))
}

// OnOffField returns the output enable bit of ch and the register holding it.
func OnOffField(ch Channel) (Register, BitField) {
	if ch == D9 {
		return RegOutputOnOffMSB, mustField(0b0000_0001)
	}
	return RegOutputOnOffLSB, BitField(1 << uint(ch))
}

// ProgramMemoryRegister returns the register holding the most significant
// byte of the instruction at index within the selected page.
func ProgramMemoryRegister(index int) (Register, error) {
	if index < 0 || index >= InstructionsPerPage {
		return 0, &ValidationError{What: "instruction index", Value: index, Limit: InstructionsPerPage - 1}
	}
	return RegProgMemBase + Register(index*BytesPerInstruction), nil
}
