package mcu

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp55231/core"
	"lp55231/engine"
	"lp55231/host/mcu/mcusim"
	"lp55231/isa"
	"lp55231/targets/sim"
)

// startMCU serves an emulated MCU with an LP55231 on i2c bus 1 at 0x32.
func startMCU(t *testing.T, compress bool) (*MCU, *mcusim.MCU, *sim.Chip) {
	t.Helper()
	chip := sim.New(sim.WithBusyPolls(2))
	fw := mcusim.New(mcusim.WithCompression(compress))
	fw.AttachI2C(1, sim.NewBus(chip, 0x32))

	host, dev := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fw.Serve(ctx, dev)
	}()
	m := New(host, nil)
	t.Cleanup(func() {
		m.Close()
		cancel()
		<-done
	})
	return m, fw, chip
}

func count(history []string, name string) int {
	n := 0
	for _, h := range history {
		if h == name {
			n++
		}
	}
	return n
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestIdentify(t *testing.T) {
	for _, compress := range []bool{false, true} {
		m, fw, _ := startMCU(t, compress)
		require.NoError(t, m.Identify(testContext(t)))

		d := m.Dictionary()
		require.NotNil(t, d)
		assert.Equal(t, mcusim.Version, d.Version)
		assert.Equal(t, mcusim.DefaultName, d.Config["MCU"])
		assert.Equal(t, fw.Dictionary(), m.RawDictionary())

		cmd, ok := d.Command("i2c_read")
		require.True(t, ok)
		want, _ := fw.Registry().ByName("i2c_read")
		assert.Equal(t, want.ID, cmd.ID)
		assert.Len(t, cmd.Params, 3)

		_, ok = d.Response("i2c_read_response")
		assert.True(t, ok)

		rounds := (len(fw.Dictionary()) + identifyChunk) / identifyChunk
		assert.Equal(t, rounds, count(fw.History(), "identify"), "identify round trips")
	}
}

func TestSendBeforeIdentify(t *testing.T) {
	m, _, _ := startMCU(t, false)
	assert.ErrorIs(t, m.Send(testContext(t), "get_uptime"), ErrNoDictionary)
}

func TestQuery(t *testing.T) {
	m, _, _ := startMCU(t, true)
	ctx := testContext(t)
	require.NoError(t, m.Identify(ctx))

	r, err := m.Query(ctx, "uptime", nil, "get_uptime")
	require.NoError(t, err)
	_, ok := r.Int("clock")
	assert.True(t, ok)

	r, err = m.Query(ctx, "config", nil, "get_config")
	require.NoError(t, err)
	shutdown, _ := r.Int("is_shutdown")
	assert.Zero(t, shutdown)

	assert.Error(t, m.Send(ctx, "no_such_command"))
	assert.Error(t, m.Send(ctx, "config_i2c"), "missing argument")
}

func newBridge(t *testing.T) (*I2CBridge, *mcusim.MCU, *sim.Chip) {
	t.Helper()
	m, fw, chip := startMCU(t, true)
	ctx := testContext(t)
	require.NoError(t, m.Identify(ctx))
	b, err := NewI2CBridge(ctx, m, BridgeConfig{OID: 4, Bus: 1, Rate: 400000, Address: 0x32})
	require.NoError(t, err)
	return b, fw, chip
}

func TestBridgeConfigures(t *testing.T) {
	_, fw, _ := newBridge(t)
	seen := fw.History()
	assert.Equal(t, []string{"config_i2c", "i2c_set_bus"}, seen[len(seen)-2:])
	bus, addr, ok := fw.Device(4)
	require.True(t, ok)
	assert.EqualValues(t, 1, bus)
	assert.EqualValues(t, 0x32, addr)
}

func TestBridgeRejectsWideAddress(t *testing.T) {
	m, _, _ := startMCU(t, false)
	_, err := NewI2CBridge(testContext(t), m, BridgeConfig{Address: 0x132})
	assert.Error(t, err)
}

func TestBridgeRegisters(t *testing.T) {
	b, _, chip := newBridge(t)

	require.NoError(t, b.WriteRegister(uint8(core.RegVariable), 0x5A))
	assert.EqualValues(t, 0x5A, chip.Register(core.RegVariable))

	v, err := b.ReadRegister(uint8(core.RegVariable))
	require.NoError(t, err)
	assert.EqualValues(t, 0x5A, v)
}

func TestBridgeLoadsProgram(t *testing.T) {
	b, _, chip := newBridge(t)
	dev := core.NewDevice(b, core.WithVerifyWrites(true))
	l := engine.NewLoader(dev, engine.Options{
		AutoIncrement: true,
		Sleep:         func(context.Context, time.Duration) error { return nil },
	}, nil)

	var pb isa.Builder
	pb.SetPWM(0xFF).Wait(isa.CT15_625, 10).SetPWM(0).Branch(0, 0)
	prog, err := pb.Program()
	require.NoError(t, err)
	// spill onto a second page and past the 32 byte transfer limit
	for len(prog) < 20 {
		prog = append(prog, isa.Must(isa.Wait(isa.CT0_488, 1)))
	}

	ctx := testContext(t)
	require.NoError(t, l.Load(ctx, prog))
	require.NoError(t, l.Verify(ctx, prog))
	for i, in := range prog {
		assert.Equal(t, in.Word(), chip.Word(i), "word %d", i)
	}
	assert.Equal(t, [core.NumEngines]core.EngineMode{}, chip.Modes())
}
