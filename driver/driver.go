// Package driver ties a register transport, the LP55231 device and the
// program loader together behind one lock.
package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"lp55231/core"
	"lp55231/engine"
	"lp55231/isa"
	"lp55231/trace"
)

// Options configure a Driver.
type Options struct {
	VerifyWrites bool
	Loader       engine.Options
	Tracer       *trace.Tracer // nil disables tracing
	Logger       *slog.Logger  // nil discards
}

// Driver is safe for concurrent use; every operation holds the driver
// lock for its whole duration.
type Driver struct {
	mu     sync.Mutex
	dev    *core.Device
	loader *engine.Loader
	log    *slog.Logger

	closers []io.Closer
	closed  bool
}

// ErrClosed is returned by operations on a closed Driver.
var ErrClosed = errors.New("driver: closed")

// New wraps bus. When bus implements core.Closer it is closed with the
// driver.
func New(bus core.Transport, opts Options) *Driver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dev := core.NewDevice(bus,
		core.WithVerifyWrites(opts.VerifyWrites),
		core.WithTracer(opts.Tracer))
	d := &Driver{
		dev:    dev,
		loader: engine.NewLoader(dev, opts.Loader, logger),
		log:    logger,
	}
	if c, ok := bus.(core.Closer); ok {
		d.closers = append(d.closers, c)
	}
	return d
}

// Do runs fn with exclusive access to the device and the loader.
func (d *Driver) Do(fn func(dev *core.Device, l *engine.Loader) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return fn(d.dev, d.loader)
}

// Load writes prog to program memory; see engine.Loader.Load.
func (d *Driver) Load(ctx context.Context, prog isa.Program) error {
	return d.Do(func(_ *core.Device, l *engine.Loader) error {
		return l.Load(ctx, prog)
	})
}

// Verify compares program memory with prog.
func (d *Driver) Verify(ctx context.Context, prog isa.Program) error {
	return d.Do(func(_ *core.Device, l *engine.Loader) error {
		return l.Verify(ctx, prog)
	})
}

// ReadProgram reads the first n instructions of program memory.
func (d *Driver) ReadProgram(ctx context.Context, n int) (isa.Program, error) {
	var prog isa.Program
	err := d.Do(func(_ *core.Device, l *engine.Loader) error {
		var err error
		prog, err = l.ReadProgram(ctx, n)
		return err
	})
	return prog, err
}

// Run starts engine e at entry with execution control exec. The chip is
// enabled first when needed. Other engines keep their mode.
func (d *Driver) Run(e core.Engine, entry uint8, exec core.EngineExec) error {
	return d.Do(func(dev *core.Device, _ *engine.Loader) error {
		defer dev.Tracer().Scope("run(%v, %d, %v)", e, entry, exec)()
		on, err := dev.IsEnabled()
		if err != nil {
			return err
		}
		if !on {
			if err := dev.SetEnabled(true); err != nil {
				return err
			}
		}
		if err := dev.SetEngineEntryPoint(e, entry); err != nil {
			return err
		}
		if err := dev.SetEngineProgramCounter(e, entry); err != nil {
			return err
		}
		if err := dev.SetEngineExec(e, exec); err != nil {
			return err
		}
		if err := dev.SetEngineMode(e, core.ModeRunProgram); err != nil {
			return err
		}
		d.log.Info("engine started", "engine", e, "entry", entry, "exec", exec)
		return nil
	})
}

// Close releases the transport and any trace files. Further calls return
// ErrClosed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
