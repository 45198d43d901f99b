package core

import (
	"lp55231/trace"
)

// Device gives register-level access to one LP55231 over a Transport.
//
// The chip's engine modes, program counters and program memory are never
// cached; every query reads the chip. A Device is not safe for concurrent
// use, wrap it in a driver.Driver for that.
type Device struct {
	bus    Transport
	block  BlockTransport // nil when bus has no block support
	verify bool
	tracer *trace.Tracer
}

// Option configures a Device.
type Option func(*Device)

// WithVerifyWrites enables read-after-write verification of every register
// write. Registers with read side effects or write-only bits are excluded
// by the callers that write them.
func WithVerifyWrites(on bool) Option {
	return func(d *Device) { d.verify = on }
}

// WithTracer records all register traffic on t.
func WithTracer(t *trace.Tracer) Option {
	return func(d *Device) { d.tracer = t }
}

// NewDevice wraps bus.
func NewDevice(bus Transport, opts ...Option) *Device {
	d := &Device{bus: bus}
	if b, ok := bus.(BlockTransport); ok {
		d.block = b
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transport returns the underlying transport.
func (d *Device) Transport() Transport { return d.bus }

// Tracer returns the tracer in use, which may be nil.
func (d *Device) Tracer() *trace.Tracer { return d.tracer }

// VerifyWrites reports whether read-after-write verification is on.
func (d *Device) VerifyWrites() bool { return d.verify }

// SupportsBlock reports whether the transport can do block transfers.
func (d *Device) SupportsBlock() bool { return d.block != nil }

// ReadRegister reads one register.
func (d *Device) ReadRegister(r Register) (uint8, error) {
	v, err := d.bus.ReadRegister(uint8(r))
	if err != nil {
		err = &TransportError{Op: "read", Register: r, Err: err}
		d.tracer.Error(err)
		return 0, err
	}
	d.tracer.Read(uint8(r), v)
	return v, nil
}

// WriteRegister writes one register, verifying it when enabled.
func (d *Device) WriteRegister(r Register, v uint8) error {
	return d.write(r, v, d.verify)
}

// WriteRegisterNoVerify writes one register without read-after-write
// verification, for registers that do not read back what was written.
func (d *Device) WriteRegisterNoVerify(r Register, v uint8) error {
	return d.write(r, v, false)
}

func (d *Device) write(r Register, v uint8, verify bool) error {
	d.tracer.Write(uint8(r), v)
	if err := d.bus.WriteRegister(uint8(r), v); err != nil {
		err = &TransportError{Op: "write", Register: r, Err: err}
		d.tracer.Error(err)
		return err
	}
	if !verify {
		return nil
	}
	got, err := d.ReadRegister(r)
	if err != nil {
		return err
	}
	if got != v {
		err := &VerificationError{Register: r, Expected: v, Observed: got}
		d.tracer.Error(err)
		return err
	}
	return nil
}

// ReadField reads r and extracts field.
func (d *Device) ReadField(r Register, field BitField) (uint8, error) {
	v, err := d.ReadRegister(r)
	if err != nil {
		return 0, err
	}
	return field.Value(v), nil
}

// UpdateRegister sets field of r to value with a read-modify-write. Bits
// outside the field keep their current value. The write is skipped when
// the register already holds the result.
func (d *Device) UpdateRegister(r Register, field BitField, value uint8) error {
	if value > field.Max() {
		return &RangeError{Field: r.String(), Value: int(value), Max: int(field.Max())}
	}
	old, err := d.ReadRegister(r)
	if err != nil {
		return err
	}
	updated, err := field.Apply(value, old)
	if err != nil {
		return err
	}
	if updated == old {
		return nil
	}
	return d.WriteRegister(r, updated)
}

// WriteBlock writes data to consecutive registers starting at r. The chip
// must have EN_AUTO_INCR set.
func (d *Device) WriteBlock(r Register, data []byte) error {
	if d.block == nil {
		return ErrNoBlock
	}
	d.tracer.Block(true, uint8(r), data)
	if err := d.block.WriteBlock(uint8(r), data); err != nil {
		err = &TransportError{Op: "write block", Register: r, Err: err}
		d.tracer.Error(err)
		return err
	}
	if !d.verify {
		return nil
	}
	got := make([]byte, len(data))
	if err := d.ReadBlock(r, got); err != nil {
		return err
	}
	for i := range data {
		if got[i] != data[i] {
			err := &VerificationError{Register: r + Register(i), Expected: data[i], Observed: got[i]}
			d.tracer.Error(err)
			return err
		}
	}
	return nil
}

// ReadBlock fills buf from consecutive registers starting at r.
func (d *Device) ReadBlock(r Register, buf []byte) error {
	if d.block == nil {
		return ErrNoBlock
	}
	if err := d.block.ReadBlock(uint8(r), buf); err != nil {
		err = &TransportError{Op: "read block", Register: r, Err: err}
		d.tracer.Error(err)
		return err
	}
	d.tracer.Block(false, uint8(r), buf)
	return nil
}
