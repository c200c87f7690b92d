// Package runtime implements the thin orchestrator that composes the
// state machine, validation engine, and event emitter into the intake
// protocol's public submission API. Persistence, delivery, upload byte
// transfer, and TTL scheduling are external collaborators; this package
// only defines their contracts.
package runtime

import (
	"context"

	"github.com/c360studio/intake/intake"
)

// Record is everything the orchestrator persists for one submission:
// metadata plus the append-only event log, in the shape the Storage
// collaborator must preserve ordering for.
type Record struct {
	Submission intake.Submission
}

// Storage is the persistence collaborator. Implementations must preserve
// append-only event ordering: Save never reorders or drops prior events.
type Storage interface {
	Load(ctx context.Context, submissionID string) (*Record, error)
	Save(ctx context.Context, record *Record) error
}

// DeliveryOutcome is the result of one delivery attempt.
type DeliveryOutcome int

const (
	DeliveryOK DeliveryOutcome = iota
	DeliveryRetryableFailure
	DeliveryFatal
)

// Delivery hands finalized submission data to a downstream system. Byte
// transfer and protocol specifics are entirely the collaborator's concern.
type Delivery interface {
	Deliver(ctx context.Context, submissionID string, fields map[string]any) (DeliveryOutcome, error)
}

// Upload mediates out-of-band file transfer for awaiting_upload fields.
type Upload interface {
	RequestUpload(ctx context.Context, field string, accept []string, maxBytes int64) (uploadURL string, err error)
	NotifyCompleted(ctx context.Context, field string) error
}

// Scheduler drives TTL expiration by calling back into the orchestrator's
// Expire operation once a submission's ttl_ms has elapsed. The core itself
// owns no timers; this is the seam an embedder wires a real clock into.
type Scheduler interface {
	Start(ctx context.Context, expire func(ctx context.Context, submissionID string) error)
	Stop()
}
