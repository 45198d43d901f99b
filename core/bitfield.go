package core

import (
	"fmt"
	"math/bits"
)

// BitField is a contiguous run of bits inside a single byte register.
//
// Example; given:
//   - a field 0b0000_1100
//   - a value 0b10
//   - a byte  0b1111_1111
//
// then Apply(value, byte) produces 0b1111_1011 and Value(0b1100_1100) is 0b11.
type BitField uint8

// NewBitField validates mask and returns it as a BitField. The mask must be
// nonzero and its set bits must not have gaps.
func NewBitField(mask uint8) (BitField, error) {
	if mask == 0 {
		return 0, fmt.Errorf("bit field mask %08b: %w", mask, ErrValidation)
	}
	run := mask >> bits.TrailingZeros8(mask)
	if run&(run+1) != 0 {
		return 0, fmt.Errorf("bit field mask %08b is not contiguous: %w", mask, ErrValidation)
	}
	return BitField(mask), nil
}

// mustField is used for the package-level field table, where masks are
// compile-time constants.
func mustField(mask uint8) BitField {
	f, err := NewBitField(mask)
	if err != nil {
		panic(err)
	}
	return f
}

// Mask returns the raw mask bits.
func (f BitField) Mask() uint8 { return uint8(f) }

// Shift returns the position of the lowest bit of the field.
func (f BitField) Shift() int { return bits.TrailingZeros8(uint8(f)) }

// Width returns the number of bits in the field.
func (f BitField) Width() int { return bits.OnesCount8(uint8(f)) }

// Max returns the largest value the field can hold.
func (f BitField) Max() uint8 { return uint8(f) >> f.Shift() }

// Apply clears the field's bits in b and stores value there. Bits outside
// the field are preserved.
func (f BitField) Apply(value, b uint8) (uint8, error) {
	if value > f.Max() {
		return b, &RangeError{Field: f.String(), Value: int(value), Max: int(f.Max())}
	}
	return b&^uint8(f) | value<<f.Shift(), nil
}

// With returns value placed at the field position of an otherwise zero byte.
func (f BitField) With(value uint8) (uint8, error) {
	return f.Apply(value, 0)
}

// Value extracts the field from b.
func (f BitField) Value(b uint8) uint8 {
	return (b & uint8(f)) >> f.Shift()
}

// IsSet reports whether any bit of the field is set in b.
func (f BitField) IsSet(b uint8) bool {
	return f.Value(b) != 0
}

func (f BitField) String() string {
	return fmt.Sprintf("field %08b", uint8(f))
}

// boolBit converts a flag into a single-bit field value.
func boolBit(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}
