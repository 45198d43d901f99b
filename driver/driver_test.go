package driver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp55231/config"
	"lp55231/core"
	"lp55231/engine"
	"lp55231/isa"
	"lp55231/targets/sim"
	"lp55231/trace"
)

func blink(t *testing.T) isa.Program {
	t.Helper()
	var b isa.Builder
	b.SetPWM(0xFF).Wait(isa.CT15_625, 31).SetPWM(0).Wait(isa.CT15_625, 31).Branch(0, 0)
	prog, err := b.Program()
	require.NoError(t, err)
	return prog
}

func newSim(t *testing.T, opts Options) (*Driver, *sim.Chip) {
	t.Helper()
	chip := sim.New(sim.WithBusyPolls(1))
	opts.Loader.Sleep = func(context.Context, time.Duration) error { return nil }
	d := New(chip, opts)
	t.Cleanup(func() { d.Close() })
	return d, chip
}

func TestLoadVerifyRead(t *testing.T) {
	d, chip := newSim(t, Options{VerifyWrites: true})
	ctx := context.Background()
	prog := blink(t)

	require.NoError(t, d.Load(ctx, prog))
	require.NoError(t, d.Verify(ctx, prog))

	got, err := d.ReadProgram(ctx, len(prog))
	require.NoError(t, err)
	assert.Equal(t, prog, got)
	assert.Equal(t, prog[0].Word(), chip.Word(0))
}

func TestVerifyMismatch(t *testing.T) {
	d, chip := newSim(t, Options{})
	ctx := context.Background()
	prog := blink(t)
	require.NoError(t, d.Load(ctx, prog))

	chip.Poke(2, 0x1234)
	err := d.Verify(ctx, prog)
	var verr *core.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, core.ErrVerification)
	assert.Equal(t, core.RegProgMemBase+4, verr.Register)
}

func TestRun(t *testing.T) {
	d, chip := newSim(t, Options{})
	require.NoError(t, d.Load(context.Background(), blink(t)))
	require.NoError(t, d.Run(core.E2, 3, core.ExecFree))

	assert.Equal(t, [core.NumEngines]core.EngineMode{core.ModeDisabled, core.ModeRunProgram, core.ModeDisabled}, chip.Modes())
	assert.EqualValues(t, 3, chip.Register(core.RegEng2ProgStartAddr))
	assert.EqualValues(t, 3, chip.Register(core.RegEngine2PC))
	enable := chip.Register(core.RegEnableEngineCntrl1)
	assert.True(t, core.FieldChipEn.IsSet(enable))
	assert.EqualValues(t, core.ExecFree, core.ExecField(core.E2).Value(enable))

	assert.Error(t, d.Run(core.E1, 96, core.ExecFree), "entry beyond program memory")
}

func TestDoSerializes(t *testing.T) {
	d, _ := newSim(t, Options{})
	var wg sync.WaitGroup
	inside := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Do(func(dev *core.Device, _ *engine.Loader) error {
				inside++
				defer func() { inside-- }()
				if inside != 1 {
					t.Error("concurrent access to the device")
				}
				return dev.SetVariable(uint8(inside))
			})
		}()
	}
	wg.Wait()
}

type closingBus struct {
	*sim.Chip
	closed int
}

func (c *closingBus) Close() error {
	c.closed++
	return nil
}

func TestClose(t *testing.T) {
	bus := &closingBus{Chip: sim.New()}
	d := New(bus, Options{})
	require.NoError(t, d.Close())
	assert.Equal(t, 1, bus.closed)
	assert.ErrorIs(t, d.Close(), ErrClosed)
	assert.ErrorIs(t, d.Load(context.Background(), blink(t)), ErrClosed)
	assert.Equal(t, 1, bus.closed)
}

func TestOpenSimWithTrace(t *testing.T) {
	cfg := config.Default()
	cfg.Trace.Enabled = true
	cfg.Trace.File = filepath.Join(t.TempDir(), "load"+trace.FileExt)
	cfg.Loader.SettleDelay = time.Millisecond

	d, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, d.Load(context.Background(), blink(t)))
	require.NoError(t, d.Close())

	events, err := trace.ReadFile(cfg.Trace.File)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, trace.KindScopeEnter, events[0].Kind)
	assert.Contains(t, events[0].Message, "load_program")
}

func TestOpenKlipperSim(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = config.TransportKlipperSim
	polls := 1
	cfg.Sim.BusyPolls = &polls
	cfg.Loader.SettleDelay = time.Millisecond
	cfg.VerifyWrites = true

	ctx := context.Background()
	d, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	prog := blink(t)
	require.NoError(t, d.Load(ctx, prog))
	require.NoError(t, d.Verify(ctx, prog))
	got, err := d.ReadProgram(ctx, len(prog))
	require.NoError(t, err)
	assert.Equal(t, prog, got)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Transport = "carrier-pigeon"
	_, err := Open(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestTransportErrorSurfaces(t *testing.T) {
	d, chip := newSim(t, Options{})
	boom := errors.New("bus stuck")
	chip.FailAfter(0, boom)
	err := d.Load(context.Background(), blink(t))
	assert.ErrorIs(t, err, boom)
	var terr *core.TransportError
	assert.ErrorAs(t, err, &terr)
}
