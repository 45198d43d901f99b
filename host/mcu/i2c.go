package mcu

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// maxTransfer keeps every i2c message inside one protocol frame.
const maxTransfer = 32

// BridgeConfig places a chip on one of the MCU's I2C buses.
type BridgeConfig struct {
	OID     uint8
	Bus     uint32
	Rate    uint32
	Address uint16
	Timeout time.Duration // per transfer; zero means one second
}

// I2CBridge reaches a register chip through the MCU's i2c_write and
// i2c_read commands. It implements core.BlockTransport.
type I2CBridge struct {
	mcu     *MCU
	oid     uint8
	timeout time.Duration
}

// NewI2CBridge configures an i2c object on the MCU.
func NewI2CBridge(ctx context.Context, m *MCU, cfg BridgeConfig) (*I2CBridge, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Address > 0x7F {
		return nil, fmt.Errorf("mcu: i2c address %#x is not 7-bit", cfg.Address)
	}
	if err := m.Send(ctx, "config_i2c", cfg.OID); err != nil {
		return nil, err
	}
	if err := m.Send(ctx, "i2c_set_bus", cfg.OID, cfg.Bus, cfg.Rate, cfg.Address); err != nil {
		return nil, err
	}
	m.log.Info("i2c bridge configured", "oid", cfg.OID, "bus", cfg.Bus, "rate", cfg.Rate,
		"address", fmt.Sprintf("%#02x", cfg.Address))
	return &I2CBridge{mcu: m, oid: cfg.OID, timeout: cfg.Timeout}, nil
}

func (b *I2CBridge) ReadRegister(reg uint8) (uint8, error) {
	var v [1]byte
	if err := b.ReadBlock(reg, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

func (b *I2CBridge) WriteRegister(reg, value uint8) error {
	return b.WriteBlock(reg, []byte{value})
}

// ReadBlock reads len(buf) bytes starting at reg. The chip must auto
// increment for transfers longer than one byte.
func (b *I2CBridge) ReadBlock(reg uint8, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), maxTransfer)
		if err := b.read(reg, buf[:n]); err != nil {
			return err
		}
		reg += uint8(n)
		buf = buf[n:]
	}
	return nil
}

func (b *I2CBridge) read(reg uint8, buf []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	r, err := b.mcu.Query(ctx, "i2c_read_response", b.ownResponse,
		"i2c_read", b.oid, []byte{reg}, len(buf))
	if err != nil {
		return err
	}
	data, _ := r.Bytes("response")
	if len(data) != len(buf) {
		return fmt.Errorf("mcu: i2c_read of %d bytes returned %d", len(buf), len(data))
	}
	copy(buf, data)
	return nil
}

// WriteBlock writes data to consecutive registers starting at reg.
func (b *I2CBridge) WriteBlock(reg uint8, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), maxTransfer)
		if err := b.write(reg, data[:n]); err != nil {
			return err
		}
		reg += uint8(n)
		data = data[n:]
	}
	return nil
}

func (b *I2CBridge) write(reg uint8, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var msg bytes.Buffer
	msg.WriteByte(reg)
	msg.Write(data)
	return b.mcu.Send(ctx, "i2c_write", b.oid, msg.Bytes())
}

func (b *I2CBridge) ownResponse(r Response) bool {
	oid, ok := r.Int("oid")
	return ok && oid == int32(b.oid)
}
