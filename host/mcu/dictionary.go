package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"

	"lp55231/protocol"
)

// Dictionary is the data dictionary an MCU reports on identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]any `json:"enumerations,omitempty"`

	commands  map[string]*protocol.Format
	responses map[int]*protocol.Format
}

// ParseDictionary decodes raw dictionary data, inflating it first when it
// is zlib compressed.
func ParseDictionary(raw []byte) (*Dictionary, error) {
	if isZlib(raw) {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("mcu: dictionary: %w", err)
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("mcu: inflate dictionary: %w", err)
		}
	}
	d := &Dictionary{}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("mcu: dictionary: %w", err)
	}
	if err := d.index(); err != nil {
		return nil, err
	}
	return d, nil
}

// isZlib checks the two byte zlib header: deflate method and a valid
// header checksum.
func isZlib(b []byte) bool {
	return len(b) >= 2 && b[0]&0x0F == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

func (d *Dictionary) index() error {
	d.commands = make(map[string]*protocol.Format, len(d.Commands))
	for s, id := range d.Commands {
		f, err := protocol.ParseFormat(id, s)
		if err != nil {
			return err
		}
		d.commands[f.Name] = f
	}
	d.responses = make(map[int]*protocol.Format, len(d.Responses))
	for s, id := range d.Responses {
		f, err := protocol.ParseFormat(id, s)
		if err != nil {
			return err
		}
		d.responses[id] = f
	}
	return nil
}

// Command looks up a command format by name.
func (d *Dictionary) Command(name string) (*protocol.Format, bool) {
	f, ok := d.commands[name]
	return f, ok
}

// Response looks up a response format by name.
func (d *Dictionary) Response(name string) (*protocol.Format, bool) {
	for _, f := range d.responses {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// decode splits a payload into its messages. Decoding stops at the first
// unknown response id.
func (d *Dictionary) decode(payload []byte) ([]Response, error) {
	var out []Response
	for len(payload) > 0 {
		id, err := protocol.DecodeVLQ(&payload)
		if err != nil {
			return out, err
		}
		f, ok := d.responses[int(id)]
		if !ok {
			return out, fmt.Errorf("mcu: unknown response id %d", id)
		}
		args, err := f.Decode(&payload)
		if err != nil {
			return out, err
		}
		out = append(out, Response{Name: f.Name, Args: args})
	}
	return out, nil
}

// Response is one decoded message from the MCU.
type Response struct {
	Name string
	Args map[string]any
}

// Int returns an integer argument.
func (r Response) Int(name string) (int32, bool) {
	v, ok := r.Args[name].(int32)
	return v, ok
}

// Bytes returns a byte string argument.
func (r Response) Bytes(name string) ([]byte, bool) {
	v, ok := r.Args[name].([]byte)
	return v, ok
}
