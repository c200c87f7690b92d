package eventbus

import (
	"testing"

	"github.com/c360studio/intake/intake"
)

func TestEmitDispatchesInRegistrationOrder(t *testing.T) {
	e := New(nil)
	var order []string

	e.On(intake.EventSubmissionCreated, func(ev intake.Event) { order = append(order, "first") })
	e.On(intake.EventSubmissionCreated, func(ev intake.Event) { order = append(order, "second") })
	e.OnAny(func(ev intake.Event) { order = append(order, "wildcard") })

	e.Emit(intake.Event{Type: intake.EventSubmissionCreated})

	want := []string{"first", "second", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestEmitOnlyFiresMatchingTypeAndWildcard(t *testing.T) {
	e := New(nil)
	var fired []string

	e.On(intake.EventSubmissionCreated, func(ev intake.Event) { fired = append(fired, "created") })
	e.On(intake.EventSubmissionSubmitted, func(ev intake.Event) { fired = append(fired, "submitted") })
	e.OnAny(func(ev intake.Event) { fired = append(fired, "any") })

	e.Emit(intake.Event{Type: intake.EventSubmissionSubmitted})

	if len(fired) != 2 || fired[0] != "submitted" || fired[1] != "any" {
		t.Errorf("fired = %v, want [submitted any]", fired)
	}
}

func TestListenerPanicIsIsolated(t *testing.T) {
	e := New(nil)
	var secondRan bool

	e.On(intake.EventSubmissionCreated, func(ev intake.Event) { panic("boom") })
	e.On(intake.EventSubmissionCreated, func(ev intake.Event) { secondRan = true })

	e.Emit(intake.Event{Type: intake.EventSubmissionCreated})

	if !secondRan {
		t.Error("a panicking listener prevented a later listener from running")
	}
}

func TestOffRemovesMatchingListener(t *testing.T) {
	e := New(nil)
	var calls int
	listener := func(ev intake.Event) { calls++ }

	e.On(intake.EventSubmissionCreated, listener)
	if got := e.ListenerCount(intake.EventSubmissionCreated); got != 1 {
		t.Fatalf("ListenerCount() = %d, want 1", got)
	}

	e.Off(intake.EventSubmissionCreated, listener)
	if got := e.ListenerCount(intake.EventSubmissionCreated); got != 0 {
		t.Errorf("ListenerCount() after Off = %d, want 0", got)
	}

	e.Emit(intake.Event{Type: intake.EventSubmissionCreated})
	if calls != 0 {
		t.Errorf("removed listener fired %d times, want 0", calls)
	}
}

func TestOffIsNoOpWhenListenerAbsent(t *testing.T) {
	e := New(nil)
	listener := func(ev intake.Event) {}

	e.Off(intake.EventSubmissionCreated, listener)
	e.OffAny(listener)
}

func TestClearRemovesEveryRegistration(t *testing.T) {
	e := New(nil)
	e.On(intake.EventSubmissionCreated, func(ev intake.Event) {})
	e.OnAny(func(ev intake.Event) {})

	e.Clear()

	if got := e.ListenerCount(intake.EventSubmissionCreated); got != 0 {
		t.Errorf("ListenerCount(type) after Clear = %d, want 0", got)
	}
	if got := e.ListenerCount(""); got != 0 {
		t.Errorf("ListenerCount(wildcard) after Clear = %d, want 0", got)
	}
}
