// Package config loads the YAML configuration of the host tool.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lp55231/engine"
)

// Transport names.
const (
	TransportLinux      = "linux"
	TransportKlipper    = "klipper"
	TransportSim        = "sim"
	TransportKlipperSim = "klipper-sim" // emulated MCU in front of the simulator
)

// DefaultAddress is the 7-bit bus address with ASEL0 and ASEL1 tied low.
const DefaultAddress = 0x32

// Config is the top level configuration.
type Config struct {
	Transport    string        `yaml:"transport"`
	Linux        LinuxConfig   `yaml:"linux"`
	Klipper      KlipperConfig `yaml:"klipper"`
	Sim          SimConfig     `yaml:"sim"`
	VerifyWrites bool          `yaml:"verify_writes"`
	Loader       LoaderConfig  `yaml:"loader"`
	Trace        TraceConfig   `yaml:"trace"`
	Log          LogConfig     `yaml:"log"`
}

// LinuxConfig selects an i2c-dev bus.
type LinuxConfig struct {
	Bus     int    `yaml:"bus"`
	Address uint16 `yaml:"address"`
}

// KlipperConfig reaches the chip through a Klipper MCU's I2C commands.
type KlipperConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	OID         uint8         `yaml:"oid"`
	I2CBus      uint32        `yaml:"i2c_bus"`
	Rate        uint32        `yaml:"rate"`
	Address     uint16        `yaml:"address"`
}

// DefaultBusyPolls is the simulated ENGINE_BUSY window when none is set.
const DefaultBusyPolls = 3

// SimConfig tunes the simulated chip.
type SimConfig struct {
	// BusyPolls is the number of STATUS reads that report ENGINE_BUSY
	// after entering LoadProgram. 0 disables the busy window.
	BusyPolls *int `yaml:"busy_polls"`
}

// Polls returns BusyPolls, or DefaultBusyPolls when unset.
func (s SimConfig) Polls() int {
	if s.BusyPolls == nil {
		return DefaultBusyPolls
	}
	return *s.BusyPolls
}

// LoaderConfig mirrors engine.Options.
type LoaderConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
	PollFactor      float64       `yaml:"poll_factor"`
	MaxPolls        int           `yaml:"max_polls"`
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	AutoIncrement   bool          `yaml:"auto_increment"`
}

// TraceConfig enables register tracing.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"` // CBOR capture; empty for console only
}

// LogConfig sets the operational log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportSim
	}
	if c.Linux.Address == 0 {
		c.Linux.Address = DefaultAddress
	}
	if c.Klipper.Device == "" {
		c.Klipper.Device = "/dev/ttyACM0"
	}
	if c.Klipper.Baud == 0 {
		c.Klipper.Baud = 250000
	}
	if c.Klipper.ReadTimeout == 0 {
		c.Klipper.ReadTimeout = 100 * time.Millisecond
	}
	if c.Klipper.Rate == 0 {
		c.Klipper.Rate = 400000
	}
	if c.Klipper.Address == 0 {
		c.Klipper.Address = DefaultAddress
	}
	if c.Sim.BusyPolls == nil {
		n := DefaultBusyPolls
		c.Sim.BusyPolls = &n
	}
	opts := engine.DefaultOptions()
	if c.Loader.PollInterval == 0 {
		c.Loader.PollInterval = opts.PollInterval
	}
	if c.Loader.MaxPollInterval == 0 {
		c.Loader.MaxPollInterval = c.Loader.PollInterval
	}
	if c.Loader.PollFactor == 0 {
		c.Loader.PollFactor = opts.PollFactor
	}
	if c.Loader.MaxPolls == 0 {
		c.Loader.MaxPolls = opts.MaxPolls
	}
	if c.Loader.BusyTimeout == 0 {
		c.Loader.BusyTimeout = opts.BusyTimeout
	}
	if c.Loader.SettleDelay == 0 {
		c.Loader.SettleDelay = opts.SettleDelay
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportLinux, TransportKlipper, TransportSim, TransportKlipperSim:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.Linux.Bus < 0 {
		errs = append(errs, fmt.Errorf("linux.bus %d is negative", c.Linux.Bus))
	}
	if c.Linux.Address > 0x7F {
		errs = append(errs, fmt.Errorf("linux.address 0x%x is not a 7-bit address", c.Linux.Address))
	}
	if c.Klipper.Address > 0x7F {
		errs = append(errs, fmt.Errorf("klipper.address 0x%x is not a 7-bit address", c.Klipper.Address))
	}
	if c.Klipper.Baud < 0 {
		errs = append(errs, fmt.Errorf("klipper.baud %d is negative", c.Klipper.Baud))
	}
	if n := c.Sim.Polls(); n < 0 {
		errs = append(errs, fmt.Errorf("sim.busy_polls %d is negative", n))
	}
	if c.Loader.PollInterval < 0 || c.Loader.BusyTimeout < 0 {
		errs = append(errs, errors.New("loader durations must not be negative"))
	}
	if c.Loader.MaxPollInterval < c.Loader.PollInterval {
		errs = append(errs, fmt.Errorf("loader.max_poll_interval %v is below poll_interval %v",
			c.Loader.MaxPollInterval, c.Loader.PollInterval))
	}
	if c.Loader.PollFactor < 1 {
		errs = append(errs, fmt.Errorf("loader.poll_factor %v must be at least 1", c.Loader.PollFactor))
	}
	if c.Loader.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("loader.settle_delay %v is negative", c.Loader.SettleDelay))
	}
	if c.Loader.MaxPolls < 0 {
		errs = append(errs, fmt.Errorf("loader.max_polls %d is negative", c.Loader.MaxPolls))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoaderOptions converts the loader section for engine.NewLoader.
func (c *Config) LoaderOptions() engine.Options {
	return engine.Options{
		PollInterval:    c.Loader.PollInterval,
		MaxPollInterval: c.Loader.MaxPollInterval,
		PollFactor:      c.Loader.PollFactor,
		MaxPolls:        c.Loader.MaxPolls,
		BusyTimeout:     c.Loader.BusyTimeout,
		SettleDelay:     c.Loader.SettleDelay,
		AutoIncrement:   c.Loader.AutoIncrement,
	}
}

// LogLevel parses the log level name.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
