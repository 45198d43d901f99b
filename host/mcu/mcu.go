// Package mcu talks to a Klipper MCU over its serial protocol and exposes
// the MCU's I2C bus as a register transport.
package mcu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"lp55231/host/serial"
	"lp55231/protocol"
)

// The identify exchange has fixed ids so a dictionary can be fetched
// before anything else is known about the MCU.
var (
	identifyCmd  = mustFormat(1, "identify offset=%u count=%c")
	identifyResp = mustFormat(0, "identify_response offset=%u data=%*s")
)

// identifyChunk is the number of dictionary bytes requested per identify.
const identifyChunk = 40

var ErrNoDictionary = errors.New("mcu: dictionary not loaded")

// MCU is a connection to one Klipper MCU. Queries are serialized; an MCU is
// safe for concurrent use.
type MCU struct {
	tr  *protocol.HostTransport
	log *slog.Logger

	mu   sync.Mutex
	dict *Dictionary
	raw  []byte
}

// New wraps an open port. A nil logger discards output.
func New(port io.ReadWriteCloser, logger *slog.Logger) *MCU {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MCU{
		tr:  protocol.NewHostTransport(port, logger),
		log: logger,
	}
}

// Connect opens the serial port in cfg and retrieves the dictionary.
func Connect(ctx context.Context, cfg serial.Config, logger *slog.Logger) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// stale bytes from an earlier session would desync the first frame
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("mcu: flush %s: %w", cfg.Device, err)
	}
	m := New(port, logger)
	if err := m.Identify(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Identify fetches the data dictionary in chunks and parses it.
func (m *MCU) Identify(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	for {
		chunk, err := m.identify(ctx, uint32(buf.Len()))
		if err != nil {
			return fmt.Errorf("mcu: identify at offset %d: %w", buf.Len(), err)
		}
		buf.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	dict, err := ParseDictionary(buf.Bytes())
	if err != nil {
		return err
	}
	m.raw = buf.Bytes()
	m.dict = dict
	m.log.Info("mcu identified", "version", dict.Version, "bytes", len(m.raw),
		"commands", len(dict.Commands), "responses", len(dict.Responses))
	return nil
}

func (m *MCU) identify(ctx context.Context, offset uint32) ([]byte, error) {
	payload, err := identifyCmd.Encode(nil, offset, identifyChunk)
	if err != nil {
		return nil, err
	}
	m.tr.Drain()
	if err := m.tr.Send(ctx, payload); err != nil {
		return nil, err
	}
	for {
		msg, err := m.tr.Receive(ctx)
		if err != nil {
			return nil, err
		}
		data := msg.Payload
		if id, err := protocol.DecodeVLQ(&data); err != nil || int(id) != identifyResp.ID {
			continue
		}
		args, err := identifyResp.Decode(&data)
		if err != nil {
			return nil, err
		}
		if got := uint32(args["offset"].(int32)); got != offset {
			m.log.Debug("identify response for another offset", "offset", got, "want", offset)
			continue
		}
		return args["data"].([]byte), nil
	}
}

// Dictionary returns the parsed dictionary, or nil before Identify.
func (m *MCU) Dictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dict
}

// RawDictionary returns the dictionary bytes as received.
func (m *MCU) RawDictionary() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raw
}

// Send encodes the named command with args and waits for its ack.
func (m *MCU) Send(ctx context.Context, name string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(ctx, name, args...)
}

func (m *MCU) send(ctx context.Context, name string, args ...any) error {
	if m.dict == nil {
		return ErrNoDictionary
	}
	f, ok := m.dict.Command(name)
	if !ok {
		return fmt.Errorf("mcu: unknown command %q", name)
	}
	payload, err := f.Encode(nil, args...)
	if err != nil {
		return err
	}
	m.log.Debug("send", "command", name, "args", args)
	return m.tr.Send(ctx, payload)
}

// Query sends the named command and waits for a response called reply
// for which match returns true. A nil match accepts the first one.
func (m *MCU) Query(ctx context.Context, reply string, match func(Response) bool, name string, args ...any) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tr.Drain()
	if err := m.send(ctx, name, args...); err != nil {
		return Response{}, err
	}
	for {
		msg, err := m.tr.Receive(ctx)
		if err != nil {
			return Response{}, fmt.Errorf("mcu: %s: %w", reply, err)
		}
		resps, err := m.dict.decode(msg.Payload)
		if err != nil {
			m.log.Debug("undecodable response", "error", err)
		}
		for _, r := range resps {
			if r.Name == reply && (match == nil || match(r)) {
				return r, nil
			}
		}
	}
}

// Close shuts down the transport and the port.
func (m *MCU) Close() error {
	return m.tr.Close()
}

func mustFormat(id int, s string) *protocol.Format {
	f, err := protocol.ParseFormat(id, s)
	if err != nil {
		panic(err)
	}
	return f
}
