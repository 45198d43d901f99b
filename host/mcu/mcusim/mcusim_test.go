package mcusim

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"lp55231/protocol"
	"lp55231/targets/sim"
)

func TestBootstrapIDs(t *testing.T) {
	m := New()
	for id, name := range []string{"identify_response", "identify"} {
		c, ok := m.Registry().Lookup(id)
		if !ok || c.Name != name {
			t.Errorf("id %d = %v, want %s", id, c, name)
		}
	}
	if id, _ := m.Registry().Register("identify", "offset=%u count=%c", nil); id != 1 {
		t.Errorf("re-register returned id %d", id)
	}
	if _, err := m.Registry().Register("bad", "oid=%q", nil); err == nil {
		t.Error("unknown parameter type accepted")
	}
}

func TestDictionary(t *testing.T) {
	plain := New(WithName("test-mcu"), WithClockFreq(1000))
	var d dictionary
	if err := json.Unmarshal(plain.Dictionary(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Config["MCU"] != "test-mcu" || d.Config["CLOCK_FREQ"] != float64(1000) {
		t.Errorf("config = %v", d.Config)
	}
	if id, ok := d.Commands["i2c_read oid=%c reg=%*s read_len=%u"]; !ok || id == 0 {
		t.Errorf("i2c_read missing from %v", d.Commands)
	}
	if _, ok := d.Responses["identify_response offset=%u data=%*s"]; !ok {
		t.Errorf("identify_response missing from %v", d.Responses)
	}
	if d.Enumerations["i2c_bus"]["i2c1"] != 1 {
		t.Errorf("enumerations = %v", d.Enumerations)
	}

	packed := New(WithName("test-mcu"), WithClockFreq(1000), WithCompression(true))
	zr, err := zlib.NewReader(bytes.NewReader(packed.Dictionary()))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, plain.Dictionary()) {
		t.Error("inflated dictionary differs")
	}
}

func TestZlibStoredLarge(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 0x2000) // two stored blocks
	zr, err := zlib.NewReader(bytes.NewReader(zlibStored(data)))
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip lost data: %d of %d bytes", len(got), len(data))
	}
}

// client talks raw frames to an MCU served over a pipe.
type client struct {
	t    *testing.T
	m    *MCU
	conn net.Conn
	seq  uint8
	dec  protocol.Decoder
}

func serve(t *testing.T, opts ...Option) *client {
	t.Helper()
	host, dev := net.Pipe()
	m := New(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, dev) }()
	t.Cleanup(func() {
		cancel()
		host.Close()
		if err := <-done; err != nil && err != context.Canceled {
			t.Errorf("Serve: %v", err)
		}
	})
	return &client{t: t, m: m, conn: host}
}

// call sends one command and returns the payload of the acknowledgement.
func (c *client) call(name string, args ...any) []byte {
	c.t.Helper()
	cmd, ok := c.m.Registry().ByName(name)
	if !ok {
		c.t.Fatalf("no command %s", name)
	}
	payload, err := cmd.format.Encode(nil, args...)
	if err != nil {
		c.t.Fatal(err)
	}
	frame, err := protocol.EncodeFrame(c.seq, payload)
	if err != nil {
		c.t.Fatal(err)
	}
	c.conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(frame); err != nil {
		c.t.Fatal(err)
	}
	buf := make([]byte, 128)
	for {
		if msg := c.dec.Next(); msg != nil {
			if msg.Seq != protocol.NextSeq(c.seq) {
				c.t.Errorf("ack seq %d, want %d", msg.Seq, protocol.NextSeq(c.seq))
			}
			c.seq = protocol.NextSeq(c.seq)
			return msg.Payload
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			c.t.Fatal(err)
		}
		c.dec.Write(buf[:n])
	}
}

func (c *client) response(payload []byte, name string) Args {
	c.t.Helper()
	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		c.t.Fatal(err)
	}
	r, _ := c.m.Registry().Lookup(int(id))
	if r == nil || r.Name != name {
		c.t.Fatalf("response id %d, want %s", id, name)
	}
	args, err := r.format.Decode(&payload)
	if err != nil {
		c.t.Fatal(err)
	}
	return Args(args)
}

func TestIdentifyChunks(t *testing.T) {
	c := serve(t)
	var got []byte
	for {
		a := c.response(c.call("identify", len(got), 40), "identify_response")
		if a.Uint("offset") != uint32(len(got)) {
			t.Fatalf("offset %d, want %d", a.Uint("offset"), len(got))
		}
		data := a.Bytes("data")
		got = append(got, data...)
		if len(data) < 40 {
			break
		}
	}
	if !bytes.Equal(got, c.m.Dictionary()) {
		t.Error("reassembled dictionary differs")
	}
}

func TestI2C(t *testing.T) {
	chip := sim.New()
	c := serve(t)
	c.m.AttachI2C(0, sim.NewBus(chip, 0x32))

	if p := c.call("config_i2c", 3); len(p) != 0 {
		t.Errorf("config_i2c answered % x", p)
	}
	c.call("i2c_set_bus", 3, 0, 400000, 0x32)
	if bus, addr, ok := c.m.Device(3); !ok || bus != 0 || addr != 0x32 {
		t.Errorf("Device(3) = %d, %#x, %t", bus, addr, ok)
	}

	c.call("i2c_write", 3, []byte{0x3C, 0x99})
	a := c.response(c.call("i2c_read", 3, []byte{0x3C}, 1), "i2c_read_response")
	if a.Uint("oid") != 3 || !bytes.Equal(a.Bytes("response"), []byte{0x99}) {
		t.Errorf("i2c_read_response = %v", a)
	}

	want := []string{"config_i2c", "i2c_set_bus", "i2c_write", "i2c_read"}
	if h := c.m.History(); len(h) != len(want) || h[3] != "i2c_read" {
		t.Errorf("History = %v", h)
	}
}

func TestShutdown(t *testing.T) {
	c := serve(t)
	c.call("config_i2c", 1)
	c.call("i2c_set_bus", 1, 7, 100000, 0x32)
	if got := c.m.ShutdownReason(); got != "Unsupported i2c bus" {
		t.Errorf("ShutdownReason = %q", got)
	}
	a := c.response(c.call("get_config"), "config")
	if a.Int("is_shutdown") != 1 || a.Int("move_count") != 16 {
		t.Errorf("config = %v", a)
	}

	c.call("config_reset")
	if got := c.m.ShutdownReason(); got != "" {
		t.Errorf("still shut down: %q", got)
	}
	c.call("emergency_stop")
	if got := c.m.ShutdownReason(); got != "Command request" {
		t.Errorf("ShutdownReason = %q", got)
	}
}

func TestUptime(t *testing.T) {
	c := serve(t, WithClockFreq(1000000))
	time.Sleep(2 * time.Millisecond)
	a := c.response(c.call("get_uptime"), "uptime")
	if a.Uint("high") != 0 || a.Uint("clock") < 2000 {
		t.Errorf("uptime = %v", a)
	}
}
