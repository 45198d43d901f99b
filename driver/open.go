package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"lp55231/config"
	"lp55231/core"
	"lp55231/host/mcu"
	"lp55231/host/mcu/mcusim"
	"lp55231/host/serial"
	"lp55231/targets/sim"
	"lp55231/trace"
)

// Open builds a Driver from cfg: it opens the configured transport and,
// when tracing is on, a tracer that renders on logger and optionally
// records to a capture file.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var closers []io.Closer
	fail := func(err error) (*Driver, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}

	var tracer *trace.Tracer
	if cfg.Trace.Enabled {
		loggers := []trace.Logger{trace.NewSlogAdapter(logger)}
		if cfg.Trace.File != "" {
			fl, err := trace.NewFileLogger(cfg.Trace.File)
			if err != nil {
				return nil, err
			}
			closers = append(closers, fl)
			loggers = append(loggers, fl)
		}
		tracer = trace.New(trace.NewMultiLogger(loggers...))
		logger.Debug("tracing", "session", tracer.Session(), "file", cfg.Trace.File)
	}

	bus, closer, err := openTransport(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	d := New(bus, Options{
		VerifyWrites: cfg.VerifyWrites,
		Loader:       cfg.LoaderOptions(),
		Tracer:       tracer,
		Logger:       logger,
	})
	// replaces what New collected so the bus is closed once
	d.closers = closers
	logger.Info("driver open", "transport", cfg.Transport, "block", d.dev.SupportsBlock())
	return d, nil
}

// openTransport returns the bus and whatever must be closed with it.
func openTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.Transport, io.Closer, error) {
	switch cfg.Transport {
	case config.TransportSim:
		return sim.New(sim.WithBusyPolls(cfg.Sim.Polls())), nil, nil
	case config.TransportLinux:
		return openLinux(cfg.Linux)
	case config.TransportKlipper:
		k := cfg.Klipper
		m, err := mcu.Connect(ctx, serial.Config{
			Device:      k.Device,
			Baud:        k.Baud,
			ReadTimeout: k.ReadTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return bridge(ctx, m, k)
	case config.TransportKlipperSim:
		k := cfg.Klipper
		fw := mcusim.New(mcusim.WithCompression(true), mcusim.WithLogger(logger))
		fw.AttachI2C(k.I2CBus, sim.NewBus(sim.New(sim.WithBusyPolls(cfg.Sim.Polls())), k.Address))
		host, dev := net.Pipe()
		// Serve ends when the host side of the pipe is closed
		go fw.Serve(context.Background(), dev)
		m := mcu.New(host, logger)
		if err := m.Identify(ctx); err != nil {
			m.Close()
			return nil, nil, err
		}
		return bridge(ctx, m, k)
	}
	return nil, nil, fmt.Errorf("driver: unknown transport %q", cfg.Transport)
}

// bridge configures the chip's i2c object on m. m is closed on failure.
func bridge(ctx context.Context, m *mcu.MCU, k config.KlipperConfig) (core.Transport, io.Closer, error) {
	b, err := mcu.NewI2CBridge(ctx, m, mcu.BridgeConfig{
		OID:     k.OID,
		Bus:     k.I2CBus,
		Rate:    k.Rate,
		Address: k.Address,
	})
	if err != nil {
		m.Close()
		return nil, nil, err
	}
	return b, m, nil
}
