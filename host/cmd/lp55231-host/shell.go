package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"lp55231/asm"
	"lp55231/core"
	"lp55231/driver"
	"lp55231/engine"
	"lp55231/isa"
	"lp55231/trace"
)

// errQuit ends the interactive loop.
var errQuit = errors.New("quit")

type command struct {
	usage    string
	help     string
	min, max int
	run      func(s *shell, args []string) error
}

// shell executes one command line at a time against a driver.
type shell struct {
	ctx context.Context
	drv *driver.Driver
	out io.Writer
}

func (s *shell) exec(line string) error {
	words, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	name := strings.ToLower(words[0])
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (type 'help' for commands)", name)
	}
	args := words[1:]
	if len(args) < cmd.min || len(args) > cmd.max {
		return fmt.Errorf("usage: %s %s", name, cmd.usage)
	}
	return cmd.run(s, args)
}

func (s *shell) device(fn func(dev *core.Device) error) error {
	return s.drv.Do(func(dev *core.Device, _ *engine.Loader) error { return fn(dev) })
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":      {"", "list commands", 0, 0, (*shell).help},
		"status":    {"", "show chip and engine state", 0, 0, (*shell).status},
		"reset":     {"", "reset the chip to power-on state", 0, 0, (*shell).reset},
		"enable":    {"on|off", "set CHIP_EN", 1, 1, (*shell).enable},
		"misc":      {"", "show the MISC register", 0, 0, (*shell).misc},
		"autoinc":   {"on|off", "set MISC.EN_AUTO_INCR", 1, 1, (*shell).autoinc},
		"pwm":       {"<channel> <0-255>", "set channel PWM", 2, 2, (*shell).pwm},
		"current":   {"<channel> <0-255>", "set channel current in 100uA steps", 2, 2, (*shell).current},
		"log":       {"<channel> on|off", "logarithmic PWM", 2, 2, (*shell).logarithmic},
		"ratio":     {"<channel> on|off", "ratiometric dimming", 2, 2, (*shell).ratio},
		"output":    {"<channel> on|off", "turn an output on or off", 2, 2, (*shell).output},
		"fader":     {"<channel> <fader|none>", "map a channel to a master fader", 2, 2, (*shell).fader},
		"intensity": {"<fader> <0-255>", "set master fader intensity", 2, 2, (*shell).intensity},
		"mode":      {"<engine> disabled|load|run|halt", "set engine mode", 2, 2, (*shell).mode},
		"exec":      {"<engine> hold|step|free|once", "set engine execution control", 2, 2, (*shell).execControl},
		"entry":     {"<engine> [address]", "show or set engine entry point", 1, 2, (*shell).entry},
		"pc":        {"<engine> [address]", "show or set engine program counter", 1, 2, (*shell).pc},
		"var":       {"<0-255>", "set the global variable d", 1, 1, (*shell).variable},
		"load":      {"<file>", "assemble a file and load it", 1, 1, (*shell).load},
		"verify":    {"<file>", "compare program memory with a file", 1, 1, (*shell).verify},
		"dump":      {"<page>", "disassemble one page of program memory", 1, 1, (*shell).dump},
		"asm":       {"<file>", "assemble a file and print the listing", 1, 1, (*shell).assemble},
		"run":       {"<engine> [entry] [exec]", "start an engine", 1, 3, (*shell).run},
		"trace":     {"<file>", "print a trace capture", 1, 1, (*shell).trace},
		"quit":      {"", "leave the shell", 0, 0, func(*shell, []string) error { return errQuit }},
	}
}

func (s *shell) help([]string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-36s %s\n", strings.TrimSpace(name+" "+c.usage), c.help)
	}
	return nil
}

func (s *shell) status([]string) error {
	return s.device(func(dev *core.Device) error {
		on, err := dev.IsEnabled()
		if err != nil {
			return err
		}
		st, err := dev.Status()
		if err != nil {
			return err
		}
		modes, err := dev.EngineModes()
		if err != nil {
			return err
		}
		execs, err := dev.EngineExecs()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "enabled=%t engine_busy=%t startup_busy=%t ext_clock=%t\n",
			on, st.EngineBusy, st.StartupBusy, st.ExtClockUsed)
		for _, e := range core.Engines {
			entry, err := dev.EngineEntryPoint(e)
			if err != nil {
				return err
			}
			pc, err := dev.EngineProgramCounter(e)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%v: mode=%v exec=%v entry=%d pc=%d int=%t\n",
				e, modes[e], execs[e], entry, pc, st.Interrupts[e])
		}
		return nil
	})
}

func (s *shell) reset([]string) error {
	return s.device((*core.Device).Reset)
}

func (s *shell) enable(args []string) error {
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetEnabled(on) })
}

func (s *shell) misc([]string) error {
	return s.device(func(dev *core.Device) error {
		m, err := dev.MiscSettings()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "auto_increment=%t powersave=%t charge_pump=%v pwm_powersave=%t clock=%v\n",
			m.AutoIncrement, m.Powersave, m.ChargePump, m.PWMPowersave, m.ClockSelection)
		return nil
	})
}

func (s *shell) autoinc(args []string) error {
	on, err := parseOnOff(args[0])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetAutoIncrement(on) })
}

func (s *shell) pwm(args []string) error {
	return s.channelByte(args, (*core.Device).SetChannelPWM)
}

func (s *shell) current(args []string) error {
	return s.channelByte(args, (*core.Device).SetChannelCurrent)
}

func (s *shell) logarithmic(args []string) error {
	return s.channelSwitch(args, (*core.Device).SetLogBrightness)
}

func (s *shell) ratio(args []string) error {
	return s.channelSwitch(args, (*core.Device).SetRatiometricDimming)
}

func (s *shell) output(args []string) error {
	return s.channelSwitch(args, (*core.Device).SetChannelEnabled)
}

func (s *shell) channelByte(args []string, set func(*core.Device, core.Channel, uint8) error) error {
	ch, err := core.ParseChannel(args[0])
	if err != nil {
		return err
	}
	v, err := parseByte(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return set(dev, ch, v) })
}

func (s *shell) channelSwitch(args []string, set func(*core.Device, core.Channel, bool) error) error {
	ch, err := core.ParseChannel(args[0])
	if err != nil {
		return err
	}
	on, err := parseOnOff(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return set(dev, ch, on) })
}

func (s *shell) fader(args []string) error {
	ch, err := core.ParseChannel(args[0])
	if err != nil {
		return err
	}
	var f *core.Fader
	if !strings.EqualFold(args[1], "none") {
		v, err := core.ParseFader(args[1])
		if err != nil {
			return err
		}
		f = &v
	}
	return s.device(func(dev *core.Device) error { return dev.AssignToFader(ch, f) })
}

func (s *shell) intensity(args []string) error {
	f, err := core.ParseFader(args[0])
	if err != nil {
		return err
	}
	v, err := parseByte(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetFaderIntensity(f, v) })
}

func (s *shell) mode(args []string) error {
	e, err := core.ParseEngine(args[0])
	if err != nil {
		return err
	}
	m, err := core.ParseEngineMode(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetEngineMode(e, m) })
}

func (s *shell) execControl(args []string) error {
	e, err := core.ParseEngine(args[0])
	if err != nil {
		return err
	}
	x, err := core.ParseEngineExec(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetEngineExec(e, x) })
}

func (s *shell) entry(args []string) error {
	return s.address(args, (*core.Device).EngineEntryPoint, (*core.Device).SetEngineEntryPoint)
}

func (s *shell) pc(args []string) error {
	return s.address(args, (*core.Device).EngineProgramCounter, (*core.Device).SetEngineProgramCounter)
}

// address shows the per-engine address register when no value is given
// and sets it otherwise.
func (s *shell) address(args []string,
	get func(*core.Device, core.Engine) (uint8, error),
	set func(*core.Device, core.Engine, uint8) error,
) error {
	e, err := core.ParseEngine(args[0])
	if err != nil {
		return err
	}
	if len(args) == 1 {
		return s.device(func(dev *core.Device) error {
			v, err := get(dev, e)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "%v: %d\n", e, v)
			return nil
		})
	}
	v, err := parseByte(args[1])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return set(dev, e, v) })
}

func (s *shell) variable(args []string) error {
	v, err := parseByte(args[0])
	if err != nil {
		return err
	}
	return s.device(func(dev *core.Device) error { return dev.SetVariable(v) })
}

func (s *shell) load(args []string) error {
	prog, err := assembleFile(args[0])
	if err != nil {
		return err
	}
	if err := s.drv.Load(s.ctx, prog); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "loaded %d instructions\n", len(prog))
	return nil
}

func (s *shell) verify(args []string) error {
	prog, err := assembleFile(args[0])
	if err != nil {
		return err
	}
	if err := s.drv.Verify(s.ctx, prog); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "verified %d instructions\n", len(prog))
	return nil
}

func (s *shell) dump(args []string) error {
	page, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("page %q: %w", args[0], core.ErrValidation)
	}
	if err := isa.ValidatePage(page); err != nil {
		return err
	}
	prog, err := s.drv.ReadProgram(s.ctx, (page+1)*core.InstructionsPerPage)
	if err != nil {
		return err
	}
	first := page * core.InstructionsPerPage
	for i, ins := range prog[first:] {
		fmt.Fprintf(s.out, "%-24s ; %2d: %04x\n", asm.Disassemble(ins), first+i, ins.Word())
	}
	return nil
}

func (s *shell) assemble(args []string) error {
	prog, err := assembleFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(s.out, asm.DisassembleProgram(prog))
	return nil
}

func (s *shell) run(args []string) error {
	e, err := core.ParseEngine(args[0])
	if err != nil {
		return err
	}
	var entry uint8
	if len(args) > 1 {
		if entry, err = parseByte(args[1]); err != nil {
			return err
		}
	}
	exec := core.ExecFree
	if len(args) > 2 {
		if exec, err = core.ParseEngineExec(args[2]); err != nil {
			return err
		}
	}
	return s.drv.Run(e, entry, exec)
}

func (s *shell) trace(args []string) error {
	events, err := trace.ReadFile(args[0])
	for _, ev := range events {
		fmt.Fprintln(s.out, formatEvent(ev))
	}
	return err
}

func formatEvent(ev trace.Event) string {
	indent := strings.Repeat("  ", max(ev.Depth, 0))
	switch ev.Kind {
	case trace.KindRead, trace.KindWrite:
		return fmt.Sprintf("%5d %s%-5s %v = %08b", ev.Seq, indent, strings.ToLower(ev.Kind.String()),
			core.Register(ev.Register), ev.Value)
	case trace.KindBlockRead, trace.KindBlockWrite:
		return fmt.Sprintf("%5d %s%s %v [% x]", ev.Seq, indent, strings.ToLower(ev.Kind.String()),
			core.Register(ev.Register), ev.Data)
	case trace.KindScopeExit:
		return fmt.Sprintf("%5d %s} %s", ev.Seq, indent, ev.Message)
	case trace.KindError:
		return fmt.Sprintf("%5d %serror: %s", ev.Seq, indent, ev.Message)
	}
	return fmt.Sprintf("%5d %s%s", ev.Seq, indent, ev.Message)
}

func assembleFile(path string) (isa.Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Assemble(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q: want on or off: %w", s, core.ErrValidation)
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%q: want 0-255: %w", s, core.ErrValidation)
	}
	return uint8(v), nil
}
