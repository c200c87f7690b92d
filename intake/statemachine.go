package intake

import (
	"fmt"
	"time"

	"github.com/c360studio/intake/ids"
)

// InvalidTransition reports an illegal state-machine transition attempt. It
// is an internal failure: the orchestrator converts it into a conflict
// IntakeError and never surfaces it to callers directly.
type InvalidTransition struct {
	CurrentState SubmissionState
	TargetState  SubmissionState
}

func (e *InvalidTransition) Error() string {
	targets := transitionTable[e.CurrentState]
	if len(targets) == 0 {
		return fmt.Sprintf("cannot transition from %s to %s: terminal state", e.CurrentState, e.TargetState)
	}
	return fmt.Sprintf("cannot transition from %s to %s: legal targets are %v", e.CurrentState, e.TargetState, targets)
}

// transitionTable is the fixed adjacency table (source state -> legal
// target states) that governs the entire lifecycle. Terminality is derived
// from the absence of an entry, never stored.
var transitionTable = map[SubmissionState][]SubmissionState{
	StateDraft:          {StateInProgress, StateCancelled, StateExpired},
	StateInProgress:     {StateAwaitingInput, StateAwaitingUpload, StateSubmitted, StateCancelled, StateExpired},
	StateAwaitingInput:  {StateInProgress, StateCancelled, StateExpired},
	StateAwaitingUpload: {StateInProgress, StateCancelled, StateExpired},
	StateSubmitted:      {StateNeedsReview, StateFinalized, StateRejected, StateCancelled, StateExpired},
	StateNeedsReview:    {StateApproved, StateRejected, StateCancelled, StateExpired},
	StateApproved:       {StateFinalized, StateCancelled, StateExpired},
	// StateRejected, StateFinalized, StateCancelled, StateExpired: terminal, no entry.
}

// eventTypeForTarget is the fixed lookup from target state to the event
// type a transition into it mints. The three intermediate states collapse
// to the generic field.updated kind, a deliberate choice to avoid
// otherwise-redundant event kinds for states with no distinguished
// "arrived here" semantic.
var eventTypeForTarget = map[SubmissionState]EventType{
	StateInProgress:     EventFieldUpdated,
	StateAwaitingInput:  EventFieldUpdated,
	StateAwaitingUpload: EventFieldUpdated,
	StateSubmitted:      EventSubmissionSubmitted,
	StateNeedsReview:    EventReviewRequested,
	StateApproved:       EventReviewApproved,
	StateRejected:       EventReviewRejected,
	StateFinalized:      EventSubmissionFinalized,
	StateCancelled:      EventSubmissionCancelled,
	StateExpired:        EventSubmissionExpired,
}

// StateMachine holds one submission's current state and the local event
// log accumulated by its transitions. It owns no I/O and performs no
// suspension: every operation is a bounded, synchronous step.
type StateMachine struct {
	submissionID string
	state        SubmissionState
	events       []Event
}

// NewStateMachine constructs a state machine for a submission starting in
// the given state (ordinarily StateDraft).
func NewStateMachine(submissionID string, initial SubmissionState) *StateMachine {
	return &StateMachine{submissionID: submissionID, state: initial}
}

// State returns the current state.
func (m *StateMachine) State() SubmissionState {
	return m.state
}

// CanTransitionTo is a pure predicate over the transition table.
func (m *StateMachine) CanTransitionTo(target SubmissionState) bool {
	for _, t := range transitionTable[m.state] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the current state admits no outgoing
// transitions.
func (m *StateMachine) IsTerminal() bool {
	return m.state.IsTerminal()
}

// TransitionTo attempts to move the submission to target. On success it
// mints the corresponding event, appends it to the local log, and updates
// state; the submission's state must not change on failure.
func (m *StateMachine) TransitionTo(target SubmissionState, actor Actor) (Event, error) {
	if !m.CanTransitionTo(target) {
		return Event{}, &InvalidTransition{CurrentState: m.state, TargetState: target}
	}

	eventType, ok := eventTypeForTarget[target]
	if !ok {
		// Every legal target state has a distinguished event type; an
		// omission here would be a programmer error in the table above.
		return Event{}, fmt.Errorf("intake: no event type registered for target state %s", target)
	}

	from := m.state
	event := Event{
		EventID:      ids.NewEventID(),
		Type:         eventType,
		SubmissionID: m.submissionID,
		Timestamp:    time.Now().UTC(),
		Actor:        actor,
		State:        target,
		Payload: map[string]any{
			"from_state": string(from),
			"to_state":   string(target),
		},
	}

	m.state = target
	m.events = append(m.events, event)

	return event, nil
}

// RecordEvent appends a runtime-minted event (currently only
// submission.created, which the orchestrator mints on creation rather than
// through a transition) to the local log without altering state.
func (m *StateMachine) RecordEvent(event Event) {
	m.events = append(m.events, event)
}

// Events returns a defensive copy of the local event log in append order.
func (m *StateMachine) Events() []Event {
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Serialize round-trips {submission_id, state}; the event log is
// externalized elsewhere (the orchestrator's storage collaborator).
func (m *StateMachine) Serialize() (submissionID string, state SubmissionState) {
	return m.submissionID, m.state
}

// DeserializeStateMachine reconstructs a state machine from a prior
// Serialize call, with no event history (the caller is expected to restore
// events separately from durable storage).
func DeserializeStateMachine(submissionID string, state SubmissionState) *StateMachine {
	return &StateMachine{submissionID: submissionID, state: state}
}
