package trace

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SlogAdapter renders events on an slog.Logger at Debug level, indented by
// scope depth.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	if !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.Uint64("seq", event.Seq),
		slog.String("kind", event.Kind.String()),
	}
	switch event.Kind {
	case KindRead, KindWrite:
		attrs = append(attrs,
			slog.String("reg", fmt.Sprintf("0x%02x", event.Register)),
			slog.String("value", fmt.Sprintf("%08b", event.Value)),
		)
	case KindBlockRead, KindBlockWrite:
		attrs = append(attrs,
			slog.String("reg", fmt.Sprintf("0x%02x", event.Register)),
			slog.String("data", fmt.Sprintf("% x", event.Data)),
		)
	}

	msg := event.Message
	if msg == "" {
		msg = strings.ToLower(event.Kind.String())
	}
	indent := strings.Repeat("  ", max(event.Depth, 0))
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, indent+msg, attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
