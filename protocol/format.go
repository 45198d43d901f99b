package protocol

import (
	"fmt"
	"strings"
)

// ParamType is the wire type of one message parameter.
type ParamType uint8

const (
	ParamInt   ParamType = iota // %u %i %c %hu %hi
	ParamBytes                  // %*s %.*s %s
)

// Param is one named parameter of a message format.
type Param struct {
	Name string
	Type ParamType
}

// Format describes a command or response such as
// "i2c_write oid=%c data=%*s".
type Format struct {
	ID     int
	Name   string
	Params []Param
}

// ParseFormat parses a format string as found in the MCU data dictionary.
func ParseFormat(id int, s string) (*Format, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("protocol: empty message format")
	}
	f := &Format{ID: id, Name: fields[0]}
	for _, field := range fields[1:] {
		name, verb, ok := strings.Cut(field, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("protocol: %s: bad parameter %q", f.Name, field)
		}
		var typ ParamType
		switch verb {
		case "%u", "%i", "%c", "%hu", "%hi":
			typ = ParamInt
		case "%*s", "%.*s", "%s":
			typ = ParamBytes
		default:
			return nil, fmt.Errorf("protocol: %s: unknown type %q for %s", f.Name, verb, name)
		}
		f.Params = append(f.Params, Param{Name: name, Type: typ})
	}
	return f, nil
}

// Encode appends the message id and args to dst. Integer parameters take
// any Go integer type, byte parameters take []byte or string.
func (f *Format) Encode(dst []byte, args ...any) ([]byte, error) {
	if len(args) != len(f.Params) {
		return nil, fmt.Errorf("protocol: %s takes %d arguments, got %d", f.Name, len(f.Params), len(args))
	}
	dst = AppendVLQUint(dst, uint32(f.ID))
	for i, p := range f.Params {
		switch p.Type {
		case ParamInt:
			v, ok := toInt32(args[i])
			if !ok {
				return nil, fmt.Errorf("protocol: %s.%s: want integer, got %T", f.Name, p.Name, args[i])
			}
			dst = AppendVLQ(dst, v)
		case ParamBytes:
			switch b := args[i].(type) {
			case []byte:
				dst = AppendBytes(dst, b)
			case string:
				dst = AppendBytes(dst, []byte(b))
			default:
				return nil, fmt.Errorf("protocol: %s.%s: want bytes, got %T", f.Name, p.Name, args[i])
			}
		}
	}
	return dst, nil
}

// Decode reads the parameters of f from *data, which must already be past
// the message id. Integers decode as int32 and byte strings as []byte.
func (f *Format) Decode(data *[]byte) (map[string]any, error) {
	out := make(map[string]any, len(f.Params))
	for _, p := range f.Params {
		var err error
		switch p.Type {
		case ParamInt:
			out[p.Name], err = DecodeVLQ(data)
		case ParamBytes:
			out[p.Name], err = DecodeBytes(data)
		}
		if err != nil {
			return nil, fmt.Errorf("protocol: %s.%s: %w", f.Name, p.Name, err)
		}
	}
	return out, nil
}

func (f *Format) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	for _, p := range f.Params {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		if p.Type == ParamInt {
			b.WriteString("=%u")
		} else {
			b.WriteString("=%*s")
		}
	}
	return b.String()
}

func toInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int:
		return int32(n), true
	case int8:
		return int32(n), true
	case int16:
		return int32(n), true
	case int32:
		return n, true
	case int64:
		return int32(n), true
	case uint:
		return int32(n), true
	case uint8:
		return int32(n), true
	case uint16:
		return int32(n), true
	case uint32:
		return int32(n), true
	case uint64:
		return int32(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
