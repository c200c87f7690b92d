// Package ids mints the opaque, prefixed identifiers used across the intake
// protocol: submission IDs, event IDs, and resume tokens.
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

const (
	// SubmissionPrefix prefixes every submission_id.
	SubmissionPrefix = "sub_"
	// EventPrefix prefixes every event_id.
	EventPrefix = "evt_"
	// ResumeTokenPrefix prefixes every resume_token.
	ResumeTokenPrefix = "rt_"

	// resumeTokenEntropyBytes is the amount of randomness minted per resume
	// token, chosen so the base64url encoding clears the ≥43-char floor.
	resumeTokenEntropyBytes = 32
)

// NewSubmissionID mints a new submission_id: sub_<32 hex>.
func NewSubmissionID() string {
	return SubmissionPrefix + hex32()
}

// NewEventID mints a new event_id: evt_<32 hex>.
func NewEventID() string {
	return EventPrefix + hex32()
}

// hex32 returns a UUIDv4 with its dashes stripped, yielding 32 hex characters.
func hex32() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewResumeToken mints a cryptographically secure, URL-safe resume token:
// rt_<≥43 url-safe base64 chars>. Callers never parse the token; it is
// opaque and only meaningful as a key into the orchestrator's resume map.
func NewResumeToken() (string, error) {
	buf := make([]byte, resumeTokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return ResumeTokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
