package trace

import (
	"bufio"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileExt is the conventional extension of capture files.
const FileExt = ".ltrace"

// FileLogger appends events to a capture file as a CBOR stream.
//
// Events are buffered and reach the file whenever a top-level scope closes
// or an error is recorded, so a capture cut short by a crash still holds
// every completed driver operation. Close flushes the rest.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *cbor.Encoder
	dropped int
	closed  bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &FileLogger{file: f, buf: buf, enc: NewEncoder(buf)}, nil
}

// Log encodes event. Events that fail to encode or flush are counted in
// Dropped instead of interrupting the driver.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
		return
	}
	topLevel := event.Kind == KindScopeExit && event.Depth == 0
	if topLevel || event.Kind == KindError {
		if err := l.buf.Flush(); err != nil {
			l.dropped++
		}
	}
}

// Dropped returns the number of events lost to encoding or write errors.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close flushes and closes the file. Later calls to Log are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	ferr := l.buf.Flush()
	if err := l.file.Close(); err != nil {
		return err
	}
	return ferr
}

var _ Logger = (*FileLogger)(nil)
