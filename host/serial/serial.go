// Package serial opens the serial port a Klipper MCU is attached to.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is an open serial line.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config holds serial port settings.
type Config struct {
	Device string // e.g. /dev/ttyACM0

	// Baud is ignored by USB CDC devices but must match on a UART.
	Baud int

	// ReadTimeout bounds a single Read. Zero blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the usual Klipper settings for device.
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// NativePort is a Port backed by the operating system's serial driver.
type NativePort struct {
	port *serial.Port
}

// Open opens the port described by cfg.
func Open(cfg Config) (*NativePort, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial: no device given")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	return &NativePort{port: p}, nil
}

// Read reads from the port. An expired read timeout returns 0, nil.
func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func (p *NativePort) Write(b []byte) (int, error) { return p.port.Write(b) }

// Flush discards data received but not yet read.
func (p *NativePort) Flush() error { return p.port.Flush() }

func (p *NativePort) Close() error { return p.port.Close() }
