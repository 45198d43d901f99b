package mcusim

import (
	"fmt"

	"lp55231/protocol"
)

// Args are the decoded parameters of one command: integers as int32,
// byte strings as []byte.
type Args map[string]any

// Int returns an integer argument, or 0.
func (a Args) Int(name string) int32 {
	v, _ := a[name].(int32)
	return v
}

// Uint returns an integer argument reinterpreted as unsigned.
func (a Args) Uint(name string) uint32 { return uint32(a.Int(name)) }

// Bytes returns a byte string argument, or nil.
func (a Args) Bytes(name string) []byte {
	v, _ := a[name].([]byte)
	return v
}

// Handler runs one command. Responses are queued with MCU.respond.
type Handler func(m *MCU, args Args) error

// Command is one dictionary entry. Responses have no handler.
type Command struct {
	ID      int
	Name    string
	Format  string // parameters, e.g. "oid=%c pin=%u"
	Handler Handler

	format *protocol.Format
}

// Registry assigns message ids in registration order.
type Registry struct {
	byID   []*Command
	byName map[string]*Command
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Register adds a command, or a response when h is nil, and returns its
// id. Registering a name twice returns the first id.
func (r *Registry) Register(name, format string, h Handler) (int, error) {
	if c, ok := r.byName[name]; ok {
		return c.ID, nil
	}
	full := name
	if format != "" {
		full += " " + format
	}
	id := len(r.byID)
	f, err := protocol.ParseFormat(id, full)
	if err != nil {
		return 0, err
	}
	c := &Command{ID: id, Name: name, Format: format, Handler: h, format: f}
	r.byID = append(r.byID, c)
	r.byName[name] = c
	return id, nil
}

func (r *Registry) mustRegister(name, format string, h Handler) {
	if _, err := r.Register(name, format, h); err != nil {
		panic(err)
	}
}

// Lookup finds a message by id.
func (r *Registry) Lookup(id int) (*Command, bool) {
	if id < 0 || id >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// ByName finds a message by name.
func (r *Registry) ByName(name string) (*Command, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Messages returns the dictionary "commands" and "responses" tables, keyed
// by full format string.
func (r *Registry) Messages() (commands, responses map[string]int) {
	commands = make(map[string]int)
	responses = make(map[string]int)
	for _, c := range r.byID {
		key := c.Name
		if c.Format != "" {
			key += " " + c.Format
		}
		if c.Handler != nil {
			commands[key] = c.ID
		} else {
			responses[key] = c.ID
		}
	}
	return commands, responses
}

// encode appends a response message to dst.
func (r *Registry) encode(dst []byte, name string, args ...any) ([]byte, error) {
	c, ok := r.byName[name]
	if !ok || c.Handler != nil {
		return dst, fmt.Errorf("mcusim: no response %q", name)
	}
	return c.format.Encode(dst, args...)
}
