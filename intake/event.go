package intake

import (
	"encoding/json"
	"time"
)

// EventType is the closed enumeration of event kinds. Lifecycle and
// intermediate-state events are minted by the state machine; upload and
// delivery kinds are reserved for external collaborators (see the Storage,
// Delivery, and Upload contracts in package runtime) and never produced by
// the core.
type EventType string

const (
	EventSubmissionCreated   EventType = "submission.created"
	EventSubmissionSubmitted EventType = "submission.submitted"
	EventSubmissionFinalized EventType = "submission.finalized"
	EventSubmissionCancelled EventType = "submission.cancelled"
	EventSubmissionExpired   EventType = "submission.expired"

	EventFieldUpdated EventType = "field.updated"

	EventValidationPassed EventType = "validation.passed"
	EventValidationFailed EventType = "validation.failed"

	EventReviewRequested EventType = "review.requested"
	EventReviewApproved  EventType = "review.approved"
	EventReviewRejected  EventType = "review.rejected"

	EventUploadRequested EventType = "upload.requested"
	EventUploadCompleted EventType = "upload.completed"
	EventUploadFailed    EventType = "upload.failed"

	EventDeliveryAttempted EventType = "delivery.attempted"
	EventDeliverySucceeded EventType = "delivery.succeeded"
	EventDeliveryFailed    EventType = "delivery.failed"

	EventHandoffLinkIssued EventType = "handoff.link_issued"
	EventHandoffResumed    EventType = "handoff.resumed"
)

// Event is the immutable audit record minted on every transition. Its
// canonical on-wire form is one compact JSON object per line (JSON-Lines),
// no intra-object whitespace.
type Event struct {
	EventID      string          `json:"eventId"`
	Type         EventType       `json:"type"`
	SubmissionID string          `json:"submissionId"`
	Timestamp    time.Time       `json:"ts"`
	Actor        Actor           `json:"actor"`
	State        SubmissionState `json:"state"`
	Payload      map[string]any  `json:"payload,omitempty"`
}

// timestampLayout renders timestamps with an explicit UTC offset
// ("+00:00") rather than Go's default "Z" suffix, matching the protocol's
// canonical wire form. Parsing still accepts "Z" (time.RFC3339Nano covers
// both) since the spec requires readers to treat them as equivalent.
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

type eventWire struct {
	EventID      string          `json:"eventId"`
	Type         EventType       `json:"type"`
	SubmissionID string          `json:"submissionId"`
	Timestamp    string          `json:"ts"`
	Actor        Actor           `json:"actor"`
	State        SubmissionState `json:"state"`
	Payload      map[string]any  `json:"payload,omitempty"`
}

// MarshalJSON renders Timestamp with an explicit "+00:00" offset instead of
// Go's default "Z" suffix.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventWire{
		EventID:      e.EventID,
		Type:         e.Type,
		SubmissionID: e.SubmissionID,
		Timestamp:    e.Timestamp.UTC().Format(timestampLayout),
		Actor:        e.Actor,
		State:        e.State,
		Payload:      e.Payload,
	})
}

// UnmarshalJSON accepts both the canonical "+00:00" offset and the "Z"
// suffix for Timestamp.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return err
	}
	*e = Event{
		EventID:      w.EventID,
		Type:         w.Type,
		SubmissionID: w.SubmissionID,
		Timestamp:    ts,
		Actor:        w.Actor,
		State:        w.State,
		Payload:      w.Payload,
	}
	return nil
}

// MarshalJSONL renders the event as one compact JSON line with no trailing
// newline; callers append "\n" when writing a stream.
func (e Event) MarshalJSONL() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEventJSONL parses one JSON-Lines record back into an Event.
func UnmarshalEventJSONL(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
