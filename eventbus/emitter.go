// Package eventbus provides in-process publish/subscribe dispatch for
// intake events: per-type and wildcard subscriptions, registration-order
// delivery, and isolation of listener panics so a misbehaving audit
// subscriber can never destabilize the submission lifecycle.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/c360studio/intake/intake"
)

// Listener receives one emitted event. A listener that panics is isolated:
// the emitter recovers, logs out-of-band, and continues dispatching to the
// remaining listeners.
type Listener func(event intake.Event)

// Emitter is a single-threaded-within-emit, synchronous publish/subscribe
// hub. All listeners registered for an event's specific type fire first, in
// registration order, followed by wildcard listeners in registration order.
type Emitter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	byType  map[intake.EventType][]*registration
	anyList []*registration
}

type registration struct {
	fn Listener
}

// New constructs an Emitter. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		logger: logger,
		byType: make(map[intake.EventType][]*registration),
	}
}

// On registers a listener for one event type.
func (e *Emitter) On(eventType intake.EventType, listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType[eventType] = append(e.byType[eventType], &registration{fn: listener})
}

// OnAny registers a wildcard listener that fires for every event type.
func (e *Emitter) OnAny(listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.anyList = append(e.anyList, &registration{fn: listener})
}

// Off removes the first listener registered for eventType that matches
// listener's underlying function value. Silent no-op if absent.
func (e *Emitter) Off(eventType intake.EventType, listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.byType[eventType]
	for i, r := range regs {
		if sameFunc(r.fn, listener) {
			e.byType[eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// OffAny removes the first matching wildcard listener; silent no-op if
// absent.
func (e *Emitter) OffAny(listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.anyList {
		if sameFunc(r.fn, listener) {
			e.anyList = append(e.anyList[:i:i], e.anyList[i+1:]...)
			return
		}
	}
}

// Clear removes every registration, both typed and wildcard.
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byType = make(map[intake.EventType][]*registration)
	e.anyList = nil
}

// ListenerCount returns the number of listeners registered for a type. When
// eventType is the zero value, it returns the number of wildcard listeners.
func (e *Emitter) ListenerCount(eventType intake.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if eventType == "" {
		return len(e.anyList)
	}
	return len(e.byType[eventType])
}

// Emit dispatches event synchronously to every matching listener: typed
// listeners in registration order, then wildcard listeners in registration
// order. A listener panic is recovered and logged; it never prevents
// remaining listeners from running and never propagates to the caller.
func (e *Emitter) Emit(event intake.Event) {
	e.mu.Lock()
	typed := append([]*registration(nil), e.byType[event.Type]...)
	any := append([]*registration(nil), e.anyList...)
	e.mu.Unlock()

	for _, r := range typed {
		e.dispatch(r.fn, event)
	}
	for _, r := range any {
		e.dispatch(r.fn, event)
	}
}

func (e *Emitter) dispatch(listener Listener, event intake.Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("eventbus: listener panicked, isolating",
				"event_id", event.EventID,
				"event_type", event.Type,
				"recovered", r)
		}
	}()
	listener(event)
}

// sameFunc compares two Listener values by their underlying code pointer.
// Go forbids direct function comparison, so reflection is used; this is
// sufficient for the common pattern of registering a named function (or a
// closure retained by the caller) and later passing the same value to Off.
func sameFunc(a, b Listener) bool {
	return funcPointer(a) == funcPointer(b)
}
