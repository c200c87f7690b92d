// Package storage provides the NATS KV-backed persistence adapter for
// submission records: one key per submission_id inside a single bucket.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/runtime"
)

// bucketPrefix namespaces one KV bucket per intake so distinct templates
// never collide on submission_id.
const bucketPrefix = "INTAKE_SUBMISSIONS_"

// Store is the runtime.Storage implementation backed by a NATS JetStream KV
// bucket. Keys are submission_ids; values are JSON-encoded intake.Submission
// records, revision-tracked by the bucket's history so append-only event
// ordering survives concurrent writers racing on the same key (the last
// writer wins, matching the orchestrator's per-submission serialization
// guarantee).
type Store struct {
	kv jetstream.KeyValue
}

// NewStore creates (or opens) the KV bucket for intakeID and returns a
// Store bound to it.
func NewStore(ctx context.Context, js jetstream.JetStream, intakeID string) (*Store, error) {
	bucket := bucketPrefix + sanitizeBucketName(intakeID)

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: fmt.Sprintf("intake submissions for %s", intakeID),
			History:     10,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: create submissions bucket: %w", err)
		}
	}

	return &Store{kv: kv}, nil
}

// Load implements runtime.Storage.
func (s *Store) Load(ctx context.Context, submissionID string) (*runtime.Record, error) {
	entry, err := s.kv.Get(ctx, submissionID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get submission %q: %w", submissionID, err)
	}

	var sub intake.Submission
	if err := json.Unmarshal(entry.Value(), &sub); err != nil {
		return nil, fmt.Errorf("storage: unmarshal submission %q: %w", submissionID, err)
	}

	return &runtime.Record{Submission: sub}, nil
}

// Save implements runtime.Storage. It always overwrites the full record;
// the orchestrator (not this adapter) guarantees the event slice it's
// asked to save is append-only relative to any prior Save for the same
// submission_id.
func (s *Store) Save(ctx context.Context, record *runtime.Record) error {
	data, err := json.Marshal(record.Submission)
	if err != nil {
		return fmt.Errorf("storage: marshal submission %q: %w", record.Submission.SubmissionID, err)
	}

	if _, err := s.kv.Put(ctx, record.Submission.SubmissionID, data); err != nil {
		return fmt.Errorf("storage: put submission %q: %w", record.Submission.SubmissionID, err)
	}
	return nil
}

// List returns every submission_id currently stored, for administrative
// tooling.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list submission keys: %w", err)
	}
	return keys, nil
}

func sanitizeBucketName(intakeID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, intakeID)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
