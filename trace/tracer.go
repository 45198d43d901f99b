package trace

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracer records register traffic and named scopes for one driver instance.
// A nil *Tracer is valid and records nothing.
type Tracer struct {
	mu      sync.Mutex
	logger  Logger
	session string
	seq     uint64
	depth   int
	now     func() time.Time
}

// New creates a Tracer with a fresh session id. A nil logger yields a
// Tracer that only tracks depth.
func New(logger Logger) *Tracer {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &Tracer{
		logger:  logger,
		session: uuid.NewString(),
		now:     time.Now,
	}
}

// Session returns the session id stamped on every event.
func (t *Tracer) Session() string {
	if t == nil {
		return ""
	}
	return t.session
}

// Depth returns the current scope nesting level.
func (t *Tracer) Depth() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.depth
}

// Scope opens a named scope and returns the function that closes it:
//
//	defer tr.Scope("load %d instructions", n)()
//
// Calling the returned function more than once closes the scope once.
func (t *Tracer) Scope(format string, args ...any) func() {
	if t == nil {
		return func() {}
	}
	name := fmt.Sprintf(format, args...)

	t.mu.Lock()
	t.emit(Event{Kind: KindScopeEnter, Message: name})
	t.depth++
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			t.depth--
			t.emit(Event{Kind: KindScopeExit, Message: name})
			t.mu.Unlock()
		})
	}
}

// Read records a register read.
func (t *Tracer) Read(reg, value uint8) {
	t.record(Event{Kind: KindRead, Register: reg, Value: value})
}

// Write records a register write.
func (t *Tracer) Write(reg, value uint8) {
	t.record(Event{Kind: KindWrite, Register: reg, Value: value})
}

// Block records a multi-register transfer starting at reg.
func (t *Tracer) Block(write bool, reg uint8, data []byte) {
	kind := KindBlockRead
	if write {
		kind = KindBlockWrite
	}
	t.record(Event{Kind: kind, Register: reg, Data: append([]byte(nil), data...)})
}

// Text records a free-form message.
func (t *Tracer) Text(format string, args ...any) {
	if t == nil {
		return
	}
	t.record(Event{Kind: KindText, Message: fmt.Sprintf(format, args...)})
}

// Error records err. Nil errors are ignored.
func (t *Tracer) Error(err error) {
	if t == nil || err == nil {
		return
	}
	t.record(Event{Kind: KindError, Message: err.Error()})
}

func (t *Tracer) record(e Event) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(e)
}

// emit must be called with t.mu held.
func (t *Tracer) emit(e Event) {
	t.seq++
	e.Timestamp = t.now()
	e.Session = t.session
	e.Seq = t.seq
	e.Depth = t.depth
	t.logger.Log(e)
}
