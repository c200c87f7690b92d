// Package eventstream publishes minted intake events onto NATS JetStream,
// one subject per submission, in the protocol's canonical JSON-Lines wire
// form.
package eventstream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/intake/intake"
)

// subjectPrefix namespaces every event subject so a JetStream stream can be
// bound with a single wildcard filter.
const subjectPrefix = "intake.events"

// Publisher publishes events to subject intake.events.<intakeID>.<submissionID>,
// implementing runtime.EventSink.
type Publisher struct {
	js       jetstream.JetStream
	intakeID string
}

// New returns a Publisher bound to one intake.
func New(js jetstream.JetStream, intakeID string) *Publisher {
	return &Publisher{js: js, intakeID: intakeID}
}

// Publish implements runtime.EventSink: it renders event as one compact
// JSON line and publishes it to the submission's subject.
func (p *Publisher) Publish(ctx context.Context, event intake.Event) error {
	line, err := event.MarshalJSONL()
	if err != nil {
		return fmt.Errorf("eventstream: marshal event %q: %w", event.EventID, err)
	}

	subject := fmt.Sprintf("%s.%s.%s", subjectPrefix, p.intakeID, event.SubmissionID)
	if _, err := p.js.Publish(ctx, subject, line); err != nil {
		return fmt.Errorf("eventstream: publish to %q: %w", subject, err)
	}
	return nil
}

// EnsureStream creates (or verifies) the JetStream stream backing every
// intake's event subjects, named INTAKE_EVENTS and capturing
// "intake.events.>".
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, "INTAKE_EVENTS")
	if err == nil {
		return nil
	}
	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        "INTAKE_EVENTS",
		Description: "Immutable audit log of intake submission events",
		Subjects:    []string{subjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("eventstream: create stream: %w", err)
	}
	return nil
}
