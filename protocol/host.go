package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// ErrClosed is returned once the transport has been closed or its port
// has failed.
var ErrClosed = errors.New("protocol: transport closed")

// HostTransport sends commands to an MCU and collects its responses.
//
// Every frame from the MCU acknowledges host frames up to the sequence it
// carries. Frames with a payload are also queued as responses; when the
// queue is full the oldest response is dropped.
type HostTransport struct {
	port io.ReadWriteCloser
	log  *slog.Logger

	writeMu sync.Mutex // serializes Send
	seq     uint8

	acks      chan uint8
	responses chan *Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// NewHostTransport starts reading from port. A nil logger discards output.
func NewHostTransport(port io.ReadWriteCloser, logger *slog.Logger) *HostTransport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t := &HostTransport{
		port:      port,
		log:       logger,
		seq:       SeqDest,
		acks:      make(chan uint8, 16),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send frames payload, writes it and waits until the MCU acknowledges it.
func (t *HostTransport) Send(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	frame, err := EncodeFrame(t.seq, payload)
	if err != nil {
		return err
	}
	t.drainAcks()
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	want := NextSeq(t.seq)
	for {
		select {
		case got := <-t.acks:
			if got == want {
				t.seq = want
				return nil
			}
			t.log.Debug("ignoring stale ack", "seq", got, "want", want)
		case <-ctx.Done():
			return fmt.Errorf("protocol: wait for ack %#02x: %w", want, ctx.Err())
		case <-t.done:
			return t.closedErr()
		}
	}
}

// Receive returns the next response frame.
func (t *HostTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case m := <-t.responses:
		return m, nil
	default:
	}
	select {
	case m := <-t.responses:
		return m, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("protocol: wait for response: %w", ctx.Err())
	case <-t.done:
		return nil, t.closedErr()
	}
}

// Drain discards queued responses.
func (t *HostTransport) Drain() {
	for {
		select {
		case <-t.responses:
		default:
			return
		}
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) closedErr() error {
	if t.readErr != nil && !errors.Is(t.readErr, io.EOF) {
		return fmt.Errorf("%w: %v", ErrClosed, t.readErr)
	}
	return ErrClosed
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.acks:
		default:
			return
		}
	}
}

func (t *HostTransport) readLoop() {
	defer close(t.done)

	var dec Decoder
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			dec.Write(buf[:n])
			for m := dec.Next(); m != nil; m = dec.Next() {
				t.dispatch(m)
			}
		}
		if err != nil {
			select {
			case <-t.stop:
			default:
				t.log.Warn("serial read failed", "error", err)
				t.readErr = err
			}
			return
		}
	}
}

func (t *HostTransport) dispatch(m *Message) {
	push(t.acks, m.Seq)
	if m.IsAck() {
		return
	}
	if !push(t.responses, m) {
		t.log.Warn("response queue full, dropped oldest")
	}
}

// push queues v, dropping the oldest entry while ch is full. It reports
// whether v went in without dropping anything.
func push[T any](ch chan T, v T) bool {
	for dropped := false; ; dropped = true {
		select {
		case ch <- v:
			return !dropped
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
