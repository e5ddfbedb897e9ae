package audit

import (
	"sync"

	"github.com/andrej220/secuaudit/internal/lg"
)

type EventKind string

const (
	EventCheckStarted   EventKind = "check_started"
	EventPassed         EventKind = "check_passed"
	EventFailed         EventKind = "check_failed"
	EventTransportError EventKind = "transport_error"
	EventExecutionError EventKind = "execution_error"
	EventInternalFault  EventKind = "internal_fault"
)

// Event is a structured diagnostic emitted while evaluating checks.
type Event struct {
	Kind    EventKind
	CheckID string
	Message string
}

// Diagnostics receives evaluator events. The surrounding layer decides how to surface them.
type Diagnostics interface {
	Emit(Event)
}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(Event)

func (f DiagnosticsFunc) Emit(e Event) { f(e) }

// Discard drops all events.
var Discard Diagnostics = DiagnosticsFunc(func(Event) {})

// LogDiagnostics writes events to a structured logger. Errors and faults are
// logged at error level, mismatches at warn, the rest at debug.
func LogDiagnostics(l lg.Logger) Diagnostics {
	return DiagnosticsFunc(func(e Event) {
		fields := []lg.Field{lg.String("event", string(e.Kind)), lg.String("check_id", e.CheckID)}
		switch e.Kind {
		case EventTransportError, EventExecutionError, EventInternalFault:
			l.Error(e.Message, fields...)
		case EventFailed:
			l.Warn(e.Message, fields...)
		default:
			l.Debug(e.Message, fields...)
		}
	})
}

// Recorder keeps every event it receives. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []EventKind {
	events := r.Events()
	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
