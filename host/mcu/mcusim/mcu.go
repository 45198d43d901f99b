// Package mcusim emulates the firmware side of a Klipper MCU: it serves the
// data dictionary over the identify handshake and executes the I2C command
// set against buses attached in-process. It lets the host bridge run
// without hardware.
package mcusim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"lp55231/protocol"
)

// Defaults reported in the dictionary config section.
const (
	DefaultClockFreq = 12000000
	DefaultName      = "lp55231-sim"
	Version          = "lp55231-mcusim-1"
)

var errShutdown = errors.New("mcusim: mcu is shut down")

// Option configures an MCU.
type Option func(*MCU)

// WithClockFreq sets CLOCK_FREQ and the rate of the uptime counter.
func WithClockFreq(hz uint32) Option {
	return func(m *MCU) { m.clockFreq = hz }
}

// WithName sets the MCU constant.
func WithName(name string) Option {
	return func(m *MCU) { m.name = name }
}

// WithCompression zlib-wraps the dictionary the way real firmware does.
func WithCompression(on bool) Option {
	return func(m *MCU) { m.compress = on }
}

// WithLogger sets the logger; nil discards.
func WithLogger(logger *slog.Logger) Option {
	return func(m *MCU) {
		if logger != nil {
			m.log = logger
		}
	}
}

type i2cDevice struct {
	oid     uint8
	bus     uint32
	address uint16
	ready   bool
}

// MCU is an emulated microcontroller. Serve may run on one connection at
// a time; the inspection methods are safe to call concurrently.
type MCU struct {
	reg       *Registry
	dict      []byte
	clockFreq uint32
	name      string
	compress  bool
	log       *slog.Logger
	start     time.Time

	mu        sync.Mutex
	buses     map[uint32]drivers.I2C
	devices   map[uint8]*i2cDevice
	history   []string
	configCRC uint32
	shutdown  string
	out       []byte // responses queued by the running handler
}

// New builds an MCU with the core and I2C commands registered.
func New(opts ...Option) *MCU {
	m := &MCU{
		reg:       NewRegistry(),
		clockFreq: DefaultClockFreq,
		name:      DefaultName,
		log:       slog.New(slog.DiscardHandler),
		start:     time.Now(),
		buses:     make(map[uint32]drivers.I2C),
		devices:   make(map[uint8]*i2cDevice),
	}
	for _, opt := range opts {
		opt(m)
	}
	registerCore(m.reg)
	registerI2C(m.reg)

	dict, err := buildDictionary(m.reg, Version, map[string]any{
		"CLOCK_FREQ":       m.clockFreq,
		"MCU":              m.name,
		"STATS_SUMSQ_BASE": 256,
	}, map[string][]string{"i2c_bus": {"i2c0", "i2c1"}}, m.compress)
	if err != nil {
		// only fails for unencodable config values
		panic(err)
	}
	m.dict = dict
	return m
}

// AttachI2C connects bus number n to an I2C bus.
func (m *MCU) AttachI2C(n uint32, bus drivers.I2C) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buses[n] = bus
}

// Dictionary returns the raw identify data.
func (m *MCU) Dictionary() []byte { return m.dict }

// Registry returns the message registry.
func (m *MCU) Registry() *Registry { return m.reg }

// History returns the names of the commands run so far.
func (m *MCU) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Device reports the bus and address configured for oid.
func (m *MCU) Device(oid uint8) (bus uint32, address uint16, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[oid]
	if !ok || !d.ready {
		return 0, 0, false
	}
	return d.bus, d.address, true
}

// ShutdownReason returns why the MCU shut down, or "" while it runs.
func (m *MCU) ShutdownReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Serve answers frames on conn until it fails or ctx is done. Every
// received frame is acknowledged with one frame carrying the next
// sequence number and any responses. A conn that is also an io.Closer is
// closed when ctx is done.
func (m *MCU) Serve(ctx context.Context, conn io.ReadWriter) error {
	if c, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}
	var dec protocol.Decoder
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
		dec.Write(buf[:n])
		for msg := dec.Next(); msg != nil; msg = dec.Next() {
			frame, err := protocol.EncodeFrame(protocol.NextSeq(msg.Seq), m.handle(msg.Payload))
			if err != nil {
				return err
			}
			if _, err := conn.Write(frame); err != nil {
				if errors.Is(err, io.ErrClosedPipe) {
					return nil
				}
				return err
			}
		}
	}
}

// handle runs every command in payload and returns the queued responses.
func (m *MCU) handle(payload []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = nil
	for len(payload) > 0 {
		id, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			m.log.Warn("bad message id", "error", err)
			break
		}
		c, ok := m.reg.Lookup(int(id))
		if !ok || c.Handler == nil {
			m.log.Warn("unknown command", "id", id)
			break
		}
		args, err := c.format.Decode(&payload)
		if err != nil {
			m.log.Warn("bad arguments", "command", c.Name, "error", err)
			break
		}
		m.history = append(m.history, c.Name)
		if err := c.Handler(m, Args(args)); err != nil {
			m.log.Warn("command failed", "command", c.Name, "error", err)
		}
	}
	return m.out
}

// respond queues a response to the command being handled.
func (m *MCU) respond(name string, args ...any) error {
	out, err := m.reg.encode(m.out, name, args...)
	if err != nil {
		return err
	}
	m.out = out
	return nil
}

// tryShutdown records the first shutdown reason.
func (m *MCU) tryShutdown(reason string) {
	if m.shutdown == "" {
		m.shutdown = reason
		m.log.Warn("mcu shutdown", "reason", reason)
	}
}

func (m *MCU) ticks() uint64 {
	return uint64(time.Since(m.start).Seconds() * float64(m.clockFreq))
}

func registerCore(r *Registry) {
	// identify_response and identify must be ids 0 and 1
	r.mustRegister("identify_response", "offset=%u data=%*s", nil)
	r.mustRegister("identify", "offset=%u count=%c", handleIdentify)

	r.mustRegister("get_uptime", "", handleGetUptime)
	r.mustRegister("get_clock", "", handleGetClock)
	r.mustRegister("get_config", "", handleGetConfig)
	r.mustRegister("config_reset", "", handleConfigReset)
	r.mustRegister("finalize_config", "crc=%u", handleFinalizeConfig)
	r.mustRegister("allocate_oids", "count=%c", func(*MCU, Args) error { return nil })
	r.mustRegister("emergency_stop", "", handleEmergencyStop)

	r.mustRegister("clock", "clock=%u", nil)
	r.mustRegister("uptime", "high=%u clock=%u", nil)
	r.mustRegister("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu", nil)
}

func handleIdentify(m *MCU, a Args) error {
	offset := a.Uint("offset")
	return m.respond("identify_response", offset, chunk(m.dict, offset, a.Uint("count")))
}

func handleGetUptime(m *MCU, _ Args) error {
	t := m.ticks()
	return m.respond("uptime", uint32(t>>32), uint32(t))
}

func handleGetClock(m *MCU, _ Args) error {
	return m.respond("clock", uint32(m.ticks()))
}

func handleGetConfig(m *MCU, _ Args) error {
	return m.respond("config", m.configCRC != 0, m.configCRC, m.shutdown != "", 16)
}

func handleConfigReset(m *MCU, _ Args) error {
	if m.shutdown == "" {
		return errors.New("config_reset only allowed while shut down")
	}
	m.configCRC = 0
	m.shutdown = ""
	m.devices = make(map[uint8]*i2cDevice)
	return nil
}

func handleFinalizeConfig(m *MCU, a Args) error {
	m.configCRC = a.Uint("crc")
	return nil
}

func handleEmergencyStop(m *MCU, _ Args) error {
	m.tryShutdown("Command request")
	return nil
}

func registerI2C(r *Registry) {
	r.mustRegister("config_i2c", "oid=%c", handleConfigI2C)
	r.mustRegister("i2c_set_bus", "oid=%c i2c_bus=%u rate=%u address=%u", handleI2CSetBus)
	r.mustRegister("i2c_write", "oid=%c data=%*s", handleI2CWrite)
	r.mustRegister("i2c_read", "oid=%c reg=%*s read_len=%u", handleI2CRead)
	r.mustRegister("i2c_read_response", "oid=%c response=%*s", nil)
}

func handleConfigI2C(m *MCU, a Args) error {
	oid := uint8(a.Uint("oid"))
	m.devices[oid] = &i2cDevice{oid: oid}
	return nil
}

func handleI2CSetBus(m *MCU, a Args) error {
	d, ok := m.devices[uint8(a.Uint("oid"))]
	if !ok {
		return fmt.Errorf("i2c_set_bus: oid %d not configured", a.Uint("oid"))
	}
	bus := a.Uint("i2c_bus")
	if _, ok := m.buses[bus]; !ok {
		m.tryShutdown("Unsupported i2c bus")
		return fmt.Errorf("i2c_set_bus: no bus %d", bus)
	}
	d.bus = bus
	d.address = uint16(a.Uint("address") & 0x7F)
	d.ready = true
	return nil
}

// device returns the configured device for the oid argument.
func (m *MCU) device(a Args) (*i2cDevice, drivers.I2C, error) {
	if m.shutdown != "" {
		return nil, nil, errShutdown
	}
	d, ok := m.devices[uint8(a.Uint("oid"))]
	if !ok || !d.ready {
		return nil, nil, fmt.Errorf("oid %d not configured", a.Uint("oid"))
	}
	return d, m.buses[d.bus], nil
}

func handleI2CWrite(m *MCU, a Args) error {
	d, bus, err := m.device(a)
	if err != nil {
		return err
	}
	if err := bus.Tx(d.address, a.Bytes("data"), nil); err != nil {
		m.tryShutdown("I2C write error")
		return err
	}
	return nil
}

func handleI2CRead(m *MCU, a Args) error {
	d, bus, err := m.device(a)
	if err != nil {
		return err
	}
	buf := make([]byte, a.Uint("read_len"))
	if err := bus.Tx(d.address, a.Bytes("reg"), buf); err != nil {
		m.tryShutdown("I2C read error")
		return err
	}
	return m.respond("i2c_read_response", d.oid, buf)
}
