package protocol

import "errors"

var (
	ErrTruncated = errors.New("protocol: truncated data")
	ErrTooLong   = errors.New("protocol: frame too long")
)

// AppendVLQ appends v in Klipper's variable length encoding. Values in
// [-32, 96) take one byte; every further byte carries seven more bits.
func AppendVLQ(dst []byte, v int32) []byte {
	if v < -(1<<26) || v >= 3<<26 {
		dst = append(dst, byte(v>>28)&0x7F|0x80)
	}
	if v < -(1<<19) || v >= 3<<19 {
		dst = append(dst, byte(v>>21)&0x7F|0x80)
	}
	if v < -(1<<12) || v >= 3<<12 {
		dst = append(dst, byte(v>>14)&0x7F|0x80)
	}
	if v < -(1<<5) || v >= 3<<5 {
		dst = append(dst, byte(v>>7)&0x7F|0x80)
	}
	return append(dst, byte(v)&0x7F)
}

// AppendVLQUint appends an unsigned value.
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQ(dst, int32(v))
}

// AppendBytes appends a length prefixed byte string.
func AppendBytes(dst, b []byte) []byte {
	dst = AppendVLQUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// DecodeVLQ decodes one value from the front of *data and advances it.
func DecodeVLQ(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrTruncated
	}
	c := uint32(buf[0])
	buf = buf[1:]
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(buf) == 0 {
			return 0, ErrTruncated
		}
		c = uint32(buf[0])
		buf = buf[1:]
		v = v<<7 | c&0x7F
	}
	*data = buf
	return int32(v), nil
}

// DecodeVLQUint decodes an unsigned value.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQ(data)
	return uint32(v), err
}

// DecodeBytes decodes a length prefixed byte string. The result aliases
// the input.
func DecodeBytes(data *[]byte) ([]byte, error) {
	rest := *data
	n, err := DecodeVLQUint(&rest)
	if err != nil {
		return nil, err
	}
	if uint32(len(rest)) < n {
		return nil, ErrTruncated
	}
	*data = rest[n:]
	return rest[:n:n], nil
}
