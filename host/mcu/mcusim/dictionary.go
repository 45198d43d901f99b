package mcusim

import (
	"encoding/binary"
	"encoding/json"
	"hash/adler32"
)

// dictionary is the identify payload before compression.
type dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]any            `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// buildDictionary renders the data dictionary for r. Enumeration values
// map to their index; empty names are skipped.
func buildDictionary(r *Registry, version string, config map[string]any, enums map[string][]string, compress bool) ([]byte, error) {
	d := dictionary{
		Version:       version,
		BuildVersions: "go",
		Config:        config,
	}
	d.Commands, d.Responses = r.Messages()
	for name, values := range enums {
		if d.Enumerations == nil {
			d.Enumerations = make(map[string]map[string]int)
		}
		e := make(map[string]int, len(values))
		for i, v := range values {
			if v != "" {
				e[v] = i
			}
		}
		d.Enumerations[name] = e
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	if !compress {
		return raw, nil
	}
	return zlibStored(raw), nil
}

// zlibStored wraps data in a zlib stream made of uncompressed deflate
// blocks.
func zlibStored(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/0xFFFF*5+11)
	out = append(out, 0x78, 0x9C)
	rest := data
	for {
		n := min(len(rest), 0xFFFF)
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		out = append(out, final)
		out = binary.LittleEndian.AppendUint16(out, uint16(n))
		out = binary.LittleEndian.AppendUint16(out, ^uint16(n))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}
	return binary.BigEndian.AppendUint32(out, adler32.Checksum(data))
}

// chunk returns count bytes of data from offset, clamped to its length.
func chunk(data []byte, offset uint32, count uint32) []byte {
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+count, uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}
