// Package engine loads programs into the LP55231 program memory.
//
// Program memory is only reachable while the engines are in LoadProgram
// mode. The chip accepts LoadProgram only from Disabled, and in practice
// only when all three engines are moved together, so every load and
// verify runs the same handshake:
//
//	Disabled -> LoadProgram -> wait for ENGINE_BUSY -> settle -> pages -> Disabled
//
// Entering LoadProgram resets the engine start addresses to 0, 8 and 16;
// callers set entry points after loading.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lp55231/core"
	"lp55231/isa"
)

// Loader drives the load handshake on one device. A Loader is not safe for
// concurrent use.
type Loader struct {
	dev  *core.Device
	opts Options
	log  *slog.Logger
}

// NewLoader creates a Loader for dev. A nil logger discards output.
func NewLoader(dev *core.Device, opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		dev:  dev,
		opts: opts.withDefaults(),
		log:  logger,
	}
}

// Options returns the effective options.
func (l *Loader) Options() Options { return l.opts }

// Load writes prog to program memory starting at address 0 and leaves all
// engines Disabled.
//
// A program longer than 96 instructions is rejected before the device is
// touched. Transport errors abort the load at once without any rollback.
// When ctx is cancelled between transfers the loader makes one attempt to
// return the engines to Disabled; program memory may then be partially
// written.
func (l *Loader) Load(ctx context.Context, prog isa.Program) error {
	pages, err := prog.Pages()
	if err != nil {
		return err
	}
	defer l.dev.Tracer().Scope("load_program([%d instructions])", len(prog))()

	block, err := l.enterLoadMode(ctx)
	if err != nil {
		return l.abort(err)
	}
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			return l.abort(fmt.Errorf("load page %d: %w", pg.Number, err))
		}
		if err := l.WritePage(pg.Number, pg.Instructions, block); err != nil {
			return l.abort(err)
		}
	}
	if err := l.dev.SetAllEnginesMode(core.ModeDisabled); err != nil {
		return err
	}
	l.log.Debug("program loaded", "instructions", len(prog), "pages", len(pages), "block", block)
	return nil
}

// Verify enters load mode, reads back every page of prog and compares it
// word by word. The first differing byte is reported as a
// *core.VerificationError. Engines are left Disabled.
func (l *Loader) Verify(ctx context.Context, prog isa.Program) error {
	pages, err := prog.Pages()
	if err != nil {
		return err
	}
	defer l.dev.Tracer().Scope("verify_program([%d instructions])", len(prog))()

	block, err := l.enterLoadMode(ctx)
	if err != nil {
		return l.abort(err)
	}
	for _, pg := range pages {
		if err := ctx.Err(); err != nil {
			return l.abort(fmt.Errorf("verify page %d: %w", pg.Number, err))
		}
		got, err := l.ReadPage(pg.Number, block)
		if err != nil {
			return l.abort(err)
		}
		for i, want := range pg.Instructions {
			if err := compare(i, want, got[i]); err != nil {
				l.dev.Tracer().Error(err)
				if derr := l.dev.SetAllEnginesMode(core.ModeDisabled); derr != nil {
					return derr
				}
				return fmt.Errorf("page %d: %w", pg.Number, err)
			}
		}
	}
	return l.dev.SetAllEnginesMode(core.ModeDisabled)
}

// ReadProgram enters load mode and reads the first n instructions of
// program memory. Engines are left Disabled.
func (l *Loader) ReadProgram(ctx context.Context, n int) (isa.Program, error) {
	if n < 0 || n > core.MaxInstructions {
		return nil, &core.ValidationError{What: "program length", Value: n, Limit: core.MaxInstructions}
	}
	defer l.dev.Tracer().Scope("read_program(%d)", n)()

	block, err := l.enterLoadMode(ctx)
	if err != nil {
		return nil, l.abort(err)
	}
	prog := make(isa.Program, 0, n)
	for page := 0; len(prog) < n; page++ {
		if err := ctx.Err(); err != nil {
			return nil, l.abort(fmt.Errorf("read page %d: %w", page, err))
		}
		ins, err := l.ReadPage(page, block)
		if err != nil {
			return nil, l.abort(err)
		}
		prog = append(prog, ins[:min(len(ins), n-len(prog))]...)
	}
	if err := l.dev.SetAllEnginesMode(core.ModeDisabled); err != nil {
		return nil, err
	}
	return prog, nil
}

// enterLoadMode runs the handshake up to the first page write and reports
// whether pages should move as block transfers.
func (l *Loader) enterLoadMode(ctx context.Context) (bool, error) {
	if err := l.dev.SetAllEnginesMode(core.ModeDisabled); err != nil {
		return false, err
	}
	if err := l.dev.SetAllEnginesMode(core.ModeLoadProgram); err != nil {
		return false, err
	}
	if err := l.WaitWhileBusy(ctx); err != nil {
		return false, err
	}
	if err := l.opts.Sleep(ctx, l.opts.SettleDelay); err != nil {
		return false, fmt.Errorf("settle after load mode: %w", err)
	}

	block := l.opts.AutoIncrement && l.dev.SupportsBlock()
	if block {
		if err := l.dev.SetAutoIncrement(true); err != nil {
			return false, err
		}
	}
	return block, nil
}

// abort returns err, first trying to disable the engines when err came
// from ctx. Transport and verification failures are returned untouched.
func (l *Loader) abort(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if derr := l.dev.SetAllEnginesMode(core.ModeDisabled); derr != nil {
			l.log.Warn("could not disable engines after cancelled transfer", "error", derr)
		}
	}
	l.dev.Tracer().Error(err)
	return err
}

// WaitWhileBusy polls STATUS until ENGINE_BUSY clears. It gives up with a
// *core.BusyTimeoutError after MaxPolls reads or BusyTimeout, whichever
// comes first, and returns early when ctx is done.
func (l *Loader) WaitWhileBusy(ctx context.Context) error {
	schedule := l.opts.pollSchedule()
	start := l.opts.Now()
	for polls := 1; ; polls++ {
		status, err := l.dev.ReadRegister(core.RegStatusInterrupt)
		if err != nil {
			return err
		}
		if !core.FieldEngineBusy.IsSet(status) {
			return nil
		}
		elapsed := l.opts.Now().Sub(start)
		if polls >= l.opts.MaxPolls || elapsed >= l.opts.BusyTimeout {
			return &core.BusyTimeoutError{Polls: polls, Elapsed: elapsed}
		}
		if err := l.opts.Sleep(ctx, schedule.Duration()); err != nil {
			return fmt.Errorf("wait for engine busy: %w", err)
		}
	}
}

// WritePage selects page and writes ins from its first slot. With atOnce
// the instructions go out as one block transfer, which needs a block
// capable transport and MISC.EN_AUTO_INCR set.
func (l *Loader) WritePage(page int, ins []isa.Instruction, atOnce bool) error {
	if err := isa.ValidatePage(page); err != nil {
		return err
	}
	if len(ins) > core.InstructionsPerPage {
		return &core.ValidationError{What: "page length", Value: len(ins), Limit: core.InstructionsPerPage}
	}
	defer l.dev.Tracer().Scope("write_program_page(%d, [%d instructions])", page, len(ins))()

	if err := l.dev.WriteRegister(core.RegProgMemPageSel, uint8(page)); err != nil {
		return err
	}
	if atOnce {
		return l.dev.WriteBlock(core.RegProgMemBase, isa.Program(ins).Bytes())
	}
	for i, in := range ins {
		if err := l.WriteInstruction(i, in); err != nil {
			return err
		}
	}
	return nil
}

// WriteInstruction writes one instruction into the selected page.
func (l *Loader) WriteInstruction(index int, in isa.Instruction) error {
	reg, err := core.ProgramMemoryRegister(index)
	if err != nil {
		return err
	}
	if err := l.dev.WriteRegister(reg, in.MSB); err != nil {
		return err
	}
	return l.dev.WriteRegister(reg+1, in.LSB)
}

// ReadInstruction reads one instruction from the selected page.
func (l *Loader) ReadInstruction(index int) (isa.Instruction, error) {
	reg, err := core.ProgramMemoryRegister(index)
	if err != nil {
		return isa.Instruction{}, err
	}
	msb, err := l.dev.ReadRegister(reg)
	if err != nil {
		return isa.Instruction{}, err
	}
	lsb, err := l.dev.ReadRegister(reg + 1)
	if err != nil {
		return isa.Instruction{}, err
	}
	return isa.Instruction{MSB: msb, LSB: lsb}, nil
}

// ReadPage selects page and reads all 16 of its instructions.
func (l *Loader) ReadPage(page int, atOnce bool) ([]isa.Instruction, error) {
	if err := isa.ValidatePage(page); err != nil {
		return nil, err
	}
	defer l.dev.Tracer().Scope("read_program_page(%d)", page)()

	if err := l.dev.WriteRegister(core.RegProgMemPageSel, uint8(page)); err != nil {
		return nil, err
	}
	if atOnce {
		buf := make([]byte, core.PageBytes)
		if err := l.dev.ReadBlock(core.RegProgMemBase, buf); err != nil {
			return nil, err
		}
		return isa.ProgramFromBytes(buf)
	}
	ins := make([]isa.Instruction, core.InstructionsPerPage)
	for i := range ins {
		var err error
		if ins[i], err = l.ReadInstruction(i); err != nil {
			return nil, err
		}
	}
	return ins, nil
}

func compare(index int, want, got isa.Instruction) error {
	reg := core.RegProgMemBase + core.Register(index*core.BytesPerInstruction)
	if want.MSB != got.MSB {
		return &core.VerificationError{Register: reg, Expected: want.MSB, Observed: got.MSB}
	}
	if want.LSB != got.LSB {
		return &core.VerificationError{Register: reg + 1, Expected: want.LSB, Observed: got.LSB}
	}
	return nil
}
