package intake

import (
	"strings"
	"testing"
	"time"
)

func TestEventJSONLRoundTrip(t *testing.T) {
	want := Event{
		EventID:      "evt_1",
		Type:         EventReviewApproved,
		SubmissionID: "sub_1",
		Timestamp:    time.Now().UTC(),
		Actor:        Actor{Kind: ActorHuman, ID: "u1", Name: "Ada"},
		State:        StateApproved,
		Payload:      map[string]any{"from_state": "needs_review", "to_state": "approved"},
	}

	line, err := want.MarshalJSONL()
	if err != nil {
		t.Fatalf("MarshalJSONL() error = %v", err)
	}
	if strings.ContainsAny(string(line), "\n\t") {
		t.Errorf("MarshalJSONL() produced whitespace: %q", line)
	}

	got, err := UnmarshalEventJSONL(line)
	if err != nil {
		t.Fatalf("UnmarshalEventJSONL() error = %v", err)
	}

	if got.EventID != want.EventID || got.Type != want.Type || got.SubmissionID != want.SubmissionID ||
		got.State != want.State || got.Actor.Kind != want.Actor.Kind || got.Actor.ID != want.Actor.ID ||
		got.Actor.Name != want.Actor.Name {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp round-trip mismatch: got %v, want %v", got.Timestamp, want.Timestamp)
	}
	if got.Payload["from_state"] != want.Payload["from_state"] || got.Payload["to_state"] != want.Payload["to_state"] {
		t.Errorf("Payload round-trip mismatch: got %v, want %v", got.Payload, want.Payload)
	}
}

func TestEventMarshalUsesExplicitUTCOffset(t *testing.T) {
	e := Event{
		EventID:      "evt_1",
		Type:         EventSubmissionSubmitted,
		SubmissionID: "sub_1",
		Timestamp:    time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC),
		Actor:        SystemActor(),
		State:        StateSubmitted,
	}

	line, err := e.MarshalJSONL()
	if err != nil {
		t.Fatalf("MarshalJSONL() error = %v", err)
	}
	if !strings.Contains(string(line), `"2026-07-29T12:00:00+00:00"`) {
		t.Errorf("expected explicit +00:00 offset, got %s", line)
	}
}

func TestEventUnmarshalAcceptsZSuffix(t *testing.T) {
	line := []byte(`{"eventId":"evt_1","type":"submission.submitted","submissionId":"sub_1","ts":"2026-07-29T12:00:00Z","actor":{"kind":"system","id":"system"},"state":"submitted"}`)

	got, err := UnmarshalEventJSONL(line)
	if err != nil {
		t.Fatalf("UnmarshalEventJSONL() error = %v", err)
	}
	want := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want)
	}
}
