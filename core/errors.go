package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks
var (
	ErrValidation   = errors.New("validation failed")
	ErrVerification = errors.New("read-after-write verification failed")
	ErrBusyTimeout  = errors.New("engine busy timeout")
	ErrNoBlock      = errors.New("transport does not support block transfers")
)

// ValidationError reports a length, index or address that is out of bounds.
// It is always detected before any device access.
type ValidationError struct {
	What  string // e.g. "program length", "page"
	Value int
	Limit int // largest accepted value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%d); must be in range [0:%d]", e.What, e.Value, e.Limit)
}

// Is makes ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RangeError reports an operand that does not fit its bit field.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s value %d out of range [%d:%d]", e.Field, e.Value, e.Min, e.Max)
}

// Is makes RangeError match ErrValidation.
func (e *RangeError) Is(target error) bool { return target == ErrValidation }

// CheckRange returns a RangeError when v is outside [min, max].
func CheckRange(field string, v, min, max int) error {
	if v < min || v > max {
		return &RangeError{Field: field, Value: v, Min: min, Max: max}
	}
	return nil
}

// TransportError wraps a failure reported by the register transport.
type TransportError struct {
	Op       string // "read", "write", "read block", "write block"
	Register Register
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s register 0x%02x %s: %v", e.Op, uint8(e.Register), e.Register, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// VerificationError is returned when a register reads back a different
// value than was just written to it.
type VerificationError struct {
	Register Register
	Expected uint8
	Observed uint8
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("write to register 0x%02x %s failed; read-after-write expecting %08b but got %08b",
		uint8(e.Register), e.Register, e.Expected, e.Observed)
}

// Is makes VerificationError match ErrVerification.
func (e *VerificationError) Is(target error) bool { return target == ErrVerification }

// BusyTimeoutError is returned when the engine busy bit did not clear within
// the configured number of polls or deadline.
type BusyTimeoutError struct {
	Polls   int
	Elapsed time.Duration
}

func (e *BusyTimeoutError) Error() string {
	return fmt.Sprintf("engine still busy after %d polls (%v)", e.Polls, e.Elapsed)
}

// Is makes BusyTimeoutError match ErrBusyTimeout.
func (e *BusyTimeoutError) Is(target error) bool { return target == ErrBusyTimeout }
