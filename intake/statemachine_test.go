package intake

import "testing"

func TestStateMachineLegalTransitionAdvancesState(t *testing.T) {
	m := NewStateMachine("sub_1", StateDraft)

	event, err := m.TransitionTo(StateInProgress, SystemActor())
	if err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}
	if m.State() != StateInProgress {
		t.Errorf("State() = %s, want %s", m.State(), StateInProgress)
	}
	if event.Type != EventFieldUpdated {
		t.Errorf("event type = %s, want %s", event.Type, EventFieldUpdated)
	}
	if event.Payload["from_state"] != string(StateDraft) || event.Payload["to_state"] != string(StateInProgress) {
		t.Errorf("unexpected payload: %v", event.Payload)
	}
}

func TestStateMachineIllegalTransitionLeavesStateUnchanged(t *testing.T) {
	m := NewStateMachine("sub_1", StateDraft)

	_, err := m.TransitionTo(StateFinalized, SystemActor())
	if err == nil {
		t.Fatal("expected an error transitioning draft -> finalized")
	}
	if m.State() != StateDraft {
		t.Errorf("State() = %s after failed transition, want unchanged %s", m.State(), StateDraft)
	}
	if len(m.Events()) != 0 {
		t.Errorf("expected no event minted on failed transition, got %d", len(m.Events()))
	}

	if _, ok := err.(*InvalidTransition); !ok {
		t.Errorf("expected *InvalidTransition, got %T", err)
	}
}

func TestTerminalStatesRejectEveryTransition(t *testing.T) {
	terminal := []SubmissionState{StateRejected, StateFinalized, StateCancelled, StateExpired}
	candidates := []SubmissionState{StateDraft, StateInProgress, StateSubmitted, StateApproved}

	for _, s := range terminal {
		m := NewStateMachine("sub_1", s)
		if !m.IsTerminal() {
			t.Errorf("%s: IsTerminal() = false, want true", s)
		}
		for _, target := range candidates {
			if m.CanTransitionTo(target) {
				t.Errorf("%s: CanTransitionTo(%s) = true, want false", s, target)
			}
			if _, err := m.TransitionTo(target, SystemActor()); err == nil {
				t.Errorf("%s: TransitionTo(%s) succeeded from a terminal state", s, target)
			}
		}
	}
}

func TestEventTypeForEveryLegalTarget(t *testing.T) {
	for source, targets := range transitionTable {
		for _, target := range targets {
			m := NewStateMachine("sub_1", source)
			event, err := m.TransitionTo(target, SystemActor())
			if err != nil {
				t.Fatalf("%s -> %s: unexpected error %v", source, target, err)
			}
			if event.State != target {
				t.Errorf("%s -> %s: event.State = %s, want %s", source, target, event.State, target)
			}
		}
	}
}

func TestRecordEventAppendsWithoutChangingState(t *testing.T) {
	m := NewStateMachine("sub_1", StateDraft)
	created := Event{EventID: "evt_1", Type: EventSubmissionCreated, SubmissionID: "sub_1", State: StateDraft}
	m.RecordEvent(created)

	if m.State() != StateDraft {
		t.Errorf("State() = %s, want unchanged %s", m.State(), StateDraft)
	}
	events := m.Events()
	if len(events) != 1 || events[0].EventID != "evt_1" {
		t.Errorf("unexpected event log: %+v", events)
	}
}

func TestEventsReturnsDefensiveCopy(t *testing.T) {
	m := NewStateMachine("sub_1", StateDraft)
	m.RecordEvent(Event{EventID: "evt_1"})

	events := m.Events()
	events[0].EventID = "mutated"

	if m.Events()[0].EventID != "evt_1" {
		t.Error("mutating the returned slice affected the state machine's internal log")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := NewStateMachine("sub_1", StateInProgress)
	id, state := m.Serialize()

	restored := DeserializeStateMachine(id, state)
	if restored.State() != StateInProgress {
		t.Errorf("restored State() = %s, want %s", restored.State(), StateInProgress)
	}
	if len(restored.Events()) != 0 {
		t.Error("expected a freshly deserialized machine to carry no event history")
	}
}

func TestSubmissionStateIsValid(t *testing.T) {
	if !StateDraft.IsValid() {
		t.Error("StateDraft.IsValid() = false, want true")
	}
	if SubmissionState("bogus").IsValid() {
		t.Error("bogus state IsValid() = true, want false")
	}
}
