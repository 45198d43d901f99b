package protocol

import "testing"

func TestCRC16(t *testing.T) {
	tests := []struct {
		data []byte
		want uint16
	}{
		{nil, 0xFFFF},
		{[]byte("123456789"), 0x6F91},
		{[]byte{0x05, SeqDest}, 0x9E81},
		{[]byte{0x05, 0x11}, 0x8F08},
		{[]byte{0x08, SeqDest, 0x01, 0x00, 0x28}, 0x5E9F},
	}
	for _, tt := range tests {
		if got := CRC16(tt.data); got != tt.want {
			t.Errorf("CRC16(% x) = %#04x, want %#04x", tt.data, got, tt.want)
		}
	}
}

func TestCRC16Different(t *testing.T) {
	if CRC16([]byte{1, 2, 3}) == CRC16([]byte{1, 2, 4}) {
		t.Error("CRC16 collision on single byte change")
	}
}
