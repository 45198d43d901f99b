package engine

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// Loader defaults.
const (
	DefaultPollInterval = time.Millisecond
	DefaultMaxPolls     = 100
	DefaultBusyTimeout  = 250 * time.Millisecond
	DefaultSettleDelay  = 10 * DefaultPollInterval
)

// Options tune the load handshake. Zero fields take the defaults.
type Options struct {
	// PollInterval is the delay before the second ENGINE_BUSY poll.
	PollInterval time.Duration

	// MaxPollInterval caps the poll delay when PollFactor grows it.
	// Defaults to PollInterval, which keeps the polls evenly spaced.
	MaxPollInterval time.Duration

	// PollFactor multiplies the delay after every poll. Defaults to 1.
	PollFactor float64

	// MaxPolls bounds the number of STATUS reads while waiting.
	MaxPolls int

	// BusyTimeout bounds the total wait for ENGINE_BUSY to clear.
	BusyTimeout time.Duration

	// SettleDelay is slept once after ENGINE_BUSY clears. It is never
	// skipped; zero or negative values take the default.
	SettleDelay time.Duration

	// AutoIncrement writes each page in one block transfer when the
	// transport supports it. MISC.EN_AUTO_INCR is set before writing.
	AutoIncrement bool

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Now is the clock used for BusyTimeout. Tests replace it.
	Now func() time.Time
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = o.PollInterval
	}
	if o.PollFactor < 1 {
		o.PollFactor = 1
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = DefaultMaxPolls
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// pollSchedule returns the spacing of the busy polls.
func (o Options) pollSchedule() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    o.PollInterval,
		Max:    o.MaxPollInterval,
		Factor: o.PollFactor,
		Jitter: false,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
