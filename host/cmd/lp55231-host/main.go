// Command lp55231-host drives an LP55231 LED controller from a host.
//
// Usage:
//
//	lp55231-host [flags] [command [args...]]
//
// With a command the host runs it once and exits; without one it opens an
// interactive shell. The transport comes from the configuration file and
// can be overridden with flags.
//
// Examples:
//
//	# Assemble and run a program on the simulator
//	lp55231-host -transport sim load breathe.s
//
//	# Shell on /dev/i2c-1 with register tracing
//	lp55231-host -transport linux -bus 1 -trace -verbose
//
//	# Through a Klipper MCU
//	lp55231-host -transport klipper -device /dev/ttyACM0 status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"lp55231/config"
	"lp55231/driver"
)

var (
	configFile = flag.String("config", "", "Configuration file path (YAML)")
	transport  = flag.String("transport", "", "Transport: linux, klipper, klipper-sim or sim (overrides config)")
	bus        = flag.Int("bus", -1, "Linux i2c bus number (overrides config)")
	address    = flag.Uint("address", 0, "7-bit chip address (overrides config)")
	device     = flag.String("device", "", "Klipper MCU serial device (overrides config)")
	verify     = flag.Bool("verify", false, "Verify every register write")
	traceFlag  = flag.Bool("trace", false, "Trace register traffic")
	traceFile  = flag.String("trace-file", "", "Record the register trace to a capture file")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	level, err := cfg.LogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	drv, err := driver.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("open driver", "transport", cfg.Transport, "error", err)
		os.Exit(1)
	}
	defer drv.Close()

	sh := &shell{ctx: ctx, drv: drv, out: os.Stdout}
	if flag.NArg() > 0 {
		if err := sh.exec(quoteArgs(flag.Args())); err != nil && !errors.Is(err, errQuit) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			drv.Close()
			os.Exit(1)
		}
		return
	}
	if err := interactive(ctx, sh); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}

// loadConfig reads the configuration file, if any, and applies the flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *bus >= 0 {
		cfg.Linux.Bus = *bus
	}
	if *address != 0 {
		cfg.Linux.Address = uint16(*address)
		cfg.Klipper.Address = uint16(*address)
	}
	if *device != "" {
		cfg.Klipper.Device = *device
	}
	if *verify {
		cfg.VerifyWrites = true
	}
	if *traceFlag || *traceFile != "" {
		cfg.Trace.Enabled = true
		cfg.Trace.File = *traceFile
	}
	return cfg, cfg.Validate()
}

// interactive runs the readline shell until quit, EOF or ctx is done.
func interactive(ctx context.Context, sh *shell) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lp55231> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	sh.out = rl.Stdout()

	fmt.Fprintln(sh.out, "LP55231 host shell (type 'help' for commands, 'quit' to exit)")
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if err := sh.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
		}
	}
	return nil
}

// quoteArgs joins command line arguments back into one line that shlex
// splits into the same words.
func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'\\#") {
			a = "'" + strings.ReplaceAll(a, "'", `'"'"'`) + "'"
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}
