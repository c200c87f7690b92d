// Package intake holds the closed enumerations, value types, and state
// machine at the core of the agent-oriented intake protocol: submission
// lifecycle states, actors, error envelopes, and the transition table that
// governs how a submission moves between states.
package intake

import "time"

// SubmissionState is the closed enumeration of a submission's lifecycle
// states. The last four members are terminal: no outgoing transitions exist
// for them.
type SubmissionState string

const (
	StateDraft          SubmissionState = "draft"
	StateInProgress     SubmissionState = "in_progress"
	StateAwaitingInput  SubmissionState = "awaiting_input"
	StateAwaitingUpload SubmissionState = "awaiting_upload"
	StateSubmitted      SubmissionState = "submitted"
	StateNeedsReview    SubmissionState = "needs_review"
	StateApproved       SubmissionState = "approved"
	StateRejected       SubmissionState = "rejected"
	StateFinalized      SubmissionState = "finalized"
	StateCancelled      SubmissionState = "cancelled"
	StateExpired        SubmissionState = "expired"
)

// IsValid reports whether s is one of the eleven closed states.
func (s SubmissionState) IsValid() bool {
	switch s {
	case StateDraft, StateInProgress, StateAwaitingInput, StateAwaitingUpload,
		StateSubmitted, StateNeedsReview, StateApproved, StateRejected,
		StateFinalized, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s admits no outgoing transitions. Terminality
// is derived from the transition table, never stored.
func (s SubmissionState) IsTerminal() bool {
	return s.IsValid() && len(transitionTable[s]) == 0
}

// ActorKind is the closed enumeration of actor kinds.
type ActorKind string

const (
	ActorAgent  ActorKind = "agent"
	ActorHuman  ActorKind = "human"
	ActorSystem ActorKind = "system"
)

// Actor is the identity stamped onto every mutating operation and the
// events it mints.
type Actor struct {
	Kind     ActorKind      `json:"kind"`
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SystemActor is the canonical actor used by the TTL scheduler and other
// internal callers that transition a submission on the system's behalf.
func SystemActor() Actor {
	return Actor{Kind: ActorSystem, ID: "system"}
}

// Submission is the central entity of the protocol. fields and events are
// frozen once state is terminal.
type Submission struct {
	SubmissionID string          `json:"submission_id"`
	IntakeID     string          `json:"intake_id"`
	State        SubmissionState `json:"state"`
	Fields       map[string]any  `json:"fields"`
	ResumeToken  string          `json:"resume_token"`
	CreatedBy    Actor           `json:"created_by"`
	Events       []Event         `json:"events"`
	TTLMillis    *int64          `json:"ttl_ms,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// FieldErrorCode is the closed set of codes a FieldError may carry.
type FieldErrorCode string

const (
	CodeRequired    FieldErrorCode = "required"
	CodeInvalidType FieldErrorCode = "invalid_type"
	CodeInvalidFmt  FieldErrorCode = "invalid_format"
	CodeInvalidVal  FieldErrorCode = "invalid_value"
	CodeTooShort    FieldErrorCode = "too_short"
	CodeTooLong     FieldErrorCode = "too_long"
	CodeCustom      FieldErrorCode = "custom"
)

// FieldError reports one field-level validation failure.
type FieldError struct {
	Path     string         `json:"path"`
	Code     FieldErrorCode `json:"code"`
	Message  string         `json:"message"`
	Expected any            `json:"expected,omitempty"`
	Received any            `json:"received,omitempty"`
}

// ErrorType is the closed set of error kinds an IntakeError may carry.
type ErrorType string

const (
	ErrMissing        ErrorType = "missing"
	ErrInvalid        ErrorType = "invalid"
	ErrConflict       ErrorType = "conflict"
	ErrNeedsApproval  ErrorType = "needs_approval"
	ErrUploadPending  ErrorType = "upload_pending"
	ErrDeliveryFailed ErrorType = "delivery_failed"
	ErrExpired        ErrorType = "expired"
	ErrCancelled      ErrorType = "cancelled"
	ErrNotFound       ErrorType = "not_found"
)

// retryable reports whether callers should reasonably expect retrying (after
// fixing inputs or waiting) to succeed, per the orchestrator's error
// taxonomy selection rules.
func (t ErrorType) retryable() bool {
	switch t {
	case ErrMissing, ErrInvalid, ErrUploadPending, ErrNeedsApproval, ErrDeliveryFailed:
		return true
	default:
		return false
	}
}

// NextActionKind is the closed enumeration of next-action kinds.
type NextActionKind string

const (
	ActionCollectField    NextActionKind = "collect_field"
	ActionRequestUpload   NextActionKind = "request_upload"
	ActionWaitForReview   NextActionKind = "wait_for_review"
	ActionRetryDelivery   NextActionKind = "retry_delivery"
	ActionCancel          NextActionKind = "cancel"
)

// NextAction is a structured hint directing a client to a specific
// corrective step.
type NextAction struct {
	Action   NextActionKind `json:"action"`
	Field    string         `json:"field,omitempty"`
	Hint     string         `json:"hint,omitempty"`
	Accept   []string       `json:"accept,omitempty"`
	MaxBytes int64          `json:"maxBytes,omitempty"`
}

// ErrorDetail is the `error` member of an IntakeError envelope.
type ErrorDetail struct {
	Type         ErrorType    `json:"type"`
	Retryable    bool         `json:"retryable"`
	Message      string       `json:"message,omitempty"`
	Fields       []FieldError `json:"fields,omitempty"`
	NextActions  []NextAction `json:"nextActions,omitempty"`
	RetryAfterMs int64        `json:"retryAfterMs,omitempty"`
}

// IntakeError is the envelope returned for every failing operation. It
// always carries the submission context so a caller can resume.
type IntakeError struct {
	SubmissionID string          `json:"submissionId"`
	State        SubmissionState `json:"state"`
	ResumeToken  string          `json:"resumeToken"`
	Err          ErrorDetail     `json:"error"`
}

// NewIntakeError builds an IntakeError envelope, deriving Retryable from
// Type per the orchestrator's error taxonomy.
func NewIntakeError(submissionID string, state SubmissionState, resumeToken string, errType ErrorType, message string, fields []FieldError, next []NextAction) *IntakeError {
	return &IntakeError{
		SubmissionID: submissionID,
		State:        state,
		ResumeToken:  resumeToken,
		Err: ErrorDetail{
			Type:        errType,
			Retryable:   errType.retryable(),
			Message:     message,
			Fields:      fields,
			NextActions: next,
		},
	}
}

// Error implements the error interface so an IntakeError can be returned and
// compared through ordinary Go error handling.
func (e *IntakeError) Error() string {
	if e.Err.Message != "" {
		return string(e.Err.Type) + ": " + e.Err.Message
	}
	return string(e.Err.Type)
}
