package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp55231/config"
	"lp55231/core"
	"lp55231/driver"
	"lp55231/engine"
	"lp55231/targets/sim"
)

const breathe = `
	map d1
	mux_map_start 0
loop:	ramp 15.625ms 4 up 255
	ramp 15.625ms 4 down 255
	branch loop 0
`

func newShell(t *testing.T) (*shell, *sim.Chip, *bytes.Buffer) {
	t.Helper()
	chip := sim.New()
	drv := driver.New(chip, driver.Options{Loader: engine.Options{Sleep: noSleep}})
	t.Cleanup(func() { drv.Close() })
	out := &bytes.Buffer{}
	return &shell{ctx: context.Background(), drv: drv, out: out}, chip, out
}

func noSleep(context.Context, time.Duration) error { return nil }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChannelCommands(t *testing.T) {
	sh, chip, _ := newShell(t)

	require.NoError(t, sh.exec("pwm d3 0x80"))
	require.NoError(t, sh.exec("current 3 50"))
	require.NoError(t, sh.exec("log D3 on"))
	require.NoError(t, sh.exec("output d3 off"))
	require.NoError(t, sh.exec("intensity f2 200"))

	assert.Equal(t, uint8(0x80), chip.Register(core.PWMRegister(core.D3)))
	assert.Equal(t, uint8(50), chip.Register(core.CurrentRegister(core.D3)))
	assert.True(t, core.FieldLogEn.IsSet(chip.Register(core.ControlRegister(core.D3))))
	reg, field := core.OnOffField(core.D3)
	assert.False(t, field.IsSet(chip.Register(reg)))
	assert.Equal(t, uint8(200), chip.Register(core.FaderRegister(core.F2)))

	require.NoError(t, sh.exec("fader d3 f2"))
	assert.Equal(t, uint8(2), core.FieldMapping.Value(chip.Register(core.ControlRegister(core.D3))))
	require.NoError(t, sh.exec("fader d3 none"))
	assert.Zero(t, core.FieldMapping.Value(chip.Register(core.ControlRegister(core.D3))))
}

func TestLoadRunStatus(t *testing.T) {
	sh, chip, out := newShell(t)
	path := writeFile(t, "breathe.s", breathe)

	require.NoError(t, sh.exec("load "+path))
	assert.Contains(t, out.String(), "loaded 5 instructions")
	require.NoError(t, sh.exec("verify '"+path+"'"))

	require.NoError(t, sh.exec("run e2 0"))
	assert.Equal(t, core.ModeRunProgram, chip.Modes()[core.E2])

	out.Reset()
	require.NoError(t, sh.exec("status"))
	assert.Contains(t, out.String(), "enabled=true")
	assert.Contains(t, out.String(), "E2: mode=run exec=free entry=0")
}

func TestDump(t *testing.T) {
	sh, _, out := newShell(t)
	path := writeFile(t, "breathe.s", breathe)
	require.NoError(t, sh.exec("load "+path))

	out.Reset()
	require.NoError(t, sh.exec("dump 0"))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, core.InstructionsPerPage)
	assert.Contains(t, string(lines[0]), ".word 0x0001")
	assert.Contains(t, string(lines[2]), "ramp 15.625ms 4 up 255")
	assert.Contains(t, string(lines[4]), "branch 2 0")

	assert.ErrorIs(t, sh.exec("dump 6"), core.ErrValidation)
}

func TestAsmListing(t *testing.T) {
	sh, chip, out := newShell(t)
	path := writeFile(t, "breathe.s", breathe)

	require.NoError(t, sh.exec("asm "+path))
	assert.Contains(t, out.String(), "mux_map_start 0")
	assert.Empty(t, chip.Ops(), "asm must not touch the chip")

	bad := writeFile(t, "bad.s", "pwm 1\nfrobnicate\n")
	err := sh.exec("asm " + bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestEngineAddresses(t *testing.T) {
	sh, chip, out := newShell(t)

	require.NoError(t, sh.exec("entry e3 40"))
	assert.Equal(t, uint8(40), chip.Register(core.ProgramStartRegister(core.E3)))
	require.NoError(t, sh.exec("entry e3"))
	assert.Equal(t, "E3: 40\n", out.String())

	assert.ErrorIs(t, sh.exec("pc 1 96"), core.ErrValidation)
	require.NoError(t, sh.exec("exec 1 step"))
	execs, err := engineExecs(sh)
	require.NoError(t, err)
	assert.Equal(t, core.ExecStep, execs[core.E1])
}

func engineExecs(sh *shell) ([core.NumEngines]core.EngineExec, error) {
	var execs [core.NumEngines]core.EngineExec
	err := sh.device(func(dev *core.Device) error {
		var err error
		execs, err = dev.EngineExecs()
		return err
	})
	return execs, err
}

func TestTraceReplay(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "session.ltrace")
	cfg := config.Default()
	cfg.Trace.Enabled = true
	cfg.Trace.File = capture
	drv, err := driver.Open(context.Background(), cfg, nil)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	sh := &shell{ctx: context.Background(), drv: drv, out: out}
	require.NoError(t, sh.exec("pwm d1 7"))
	require.NoError(t, drv.Close())

	require.NoError(t, sh.exec("trace "+capture))
	assert.Contains(t, out.String(), "set_channel_pwm(D1, 7)")
	assert.Contains(t, out.String(), "write D1_PWM = 00000111")
}

func TestUsageErrors(t *testing.T) {
	sh, _, out := newShell(t)

	assert.ErrorContains(t, sh.exec("frobnicate"), "unknown command")
	assert.ErrorContains(t, sh.exec("pwm d1"), "usage: pwm")
	assert.ErrorIs(t, sh.exec("pwm d1 256"), core.ErrValidation)
	assert.ErrorIs(t, sh.exec("enable maybe"), core.ErrValidation)
	assert.ErrorIs(t, sh.exec("quit"), errQuit)
	assert.NoError(t, sh.exec("   "))

	require.NoError(t, sh.exec("help"))
	assert.Contains(t, out.String(), "run <engine> [entry] [exec]")
}

func TestQuoteArgs(t *testing.T) {
	args := []string{"load", "my program.s", "it's"}
	words, err := shlex.Split(quoteArgs(args))
	require.NoError(t, err)
	assert.Equal(t, args, words)
}
