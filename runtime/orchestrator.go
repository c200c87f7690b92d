package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/intake/eventbus"
	"github.com/c360studio/intake/ids"
	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/validation"
)

// EventSink publishes minted events to an external transport (typically
// NATS JetStream); it is optional. A nil sink is a valid no-op.
type EventSink interface {
	Publish(ctx context.Context, event intake.Event) error
}

// Config configures one Orchestrator, which is always scoped to a single
// intake (one intake_id, one schema, one validation engine).
type Config struct {
	IntakeID string
	Schema   []byte
	// Validator, if set, is used instead of compiling Schema directly. Pass
	// a *validation.SchemaWatcher here to pick up hot-reloaded schemas.
	Validator Validator
	Storage   Storage
	Metrics   *Metrics
	Sink      EventSink
	Logger    *slog.Logger
}

// entry holds everything the orchestrator owns for one submission: the
// state machine, the accumulated field data, and creation metadata. Its own
// mutex serializes operations against this submission_id, matching the
// per-slug locking the teacher's phase-plan code uses — cross-submission
// operations are never serialized against each other.
type entry struct {
	mu          sync.Mutex
	machine     *intake.StateMachine
	fields      map[string]any
	createdBy   intake.Actor
	ttlMillis   *int64
	createdAt   time.Time
	resumeToken string
}

type idempotencyRecord struct {
	submissionID string
	fieldsHash   string
}

// Orchestrator composes the state machine, validation engine, and event
// emitter into the intake protocol's public submission API.
type Orchestrator struct {
	intakeID   string
	schemaJSON []byte
	engine     Validator
	storage    Storage
	metrics    *Metrics
	sink       EventSink
	logger     *slog.Logger
	emitter    *eventbus.Emitter

	reg          sync.RWMutex
	submissions  map[string]*entry
	resumeTokens map[string]string
	idempotency  map[string]idempotencyRecord
}

// Validator is the subset of *validation.Engine the orchestrator needs, so a
// *validation.SchemaWatcher (whose compiled engine may be hot-swapped) can
// stand in for a static one.
type Validator interface {
	Validate(data map[string]any) (*validation.Result, error)
}

// New constructs an Orchestrator bound to one intake and schema.
// *validation.SchemaInvalid propagates unchanged if the schema fails to
// compile — a construction-time failure, never a request-time one.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("runtime: Storage is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := cfg.Validator
	if engine == nil {
		compiled, err := validation.New(cfg.IntakeID, cfg.Schema)
		if err != nil {
			return nil, err
		}
		engine = compiled
	}

	return &Orchestrator{
		intakeID:     cfg.IntakeID,
		schemaJSON:   cfg.Schema,
		engine:       engine,
		storage:      cfg.Storage,
		metrics:      cfg.Metrics,
		sink:         cfg.Sink,
		logger:       logger,
		emitter:      eventbus.New(logger),
		submissions:  make(map[string]*entry),
		resumeTokens: make(map[string]string),
		idempotency:  make(map[string]idempotencyRecord),
	}, nil
}

// Emitter exposes the orchestrator's event bus so embedders can subscribe
// audit/tracing listeners.
func (o *Orchestrator) Emitter() *eventbus.Emitter {
	return o.emitter
}

// Envelope is the success reply shape shared by every mutating operation.
type Envelope struct {
	OK            bool                   `json:"ok"`
	SubmissionID  string                 `json:"submissionId"`
	State         intake.SubmissionState `json:"state"`
	ResumeToken   string                 `json:"resumeToken"`
	Schema        json.RawMessage        `json:"schema,omitempty"`
	MissingFields []string               `json:"missingFields,omitempty"`
}

// DetailEnvelope is get_submission's reply shape.
type DetailEnvelope struct {
	OK           bool                   `json:"ok"`
	SubmissionID string                 `json:"submissionId"`
	IntakeID     string                 `json:"intakeId"`
	State        intake.SubmissionState `json:"state"`
	ResumeToken  string                 `json:"resumeToken"`
	Fields       map[string]any         `json:"fields"`
	Events       []intake.Event         `json:"events"`
	CreatedBy    intake.Actor           `json:"createdBy"`
}

// CreateSubmission creates a new submission, or replays the prior result
// unchanged if idempotencyKey has already been seen for this intake.
func (o *Orchestrator) CreateSubmission(ctx context.Context, actor intake.Actor, idempotencyKey string, initialFields map[string]any, ttlMs *int64) (*Envelope, *intake.IntakeError) {
	hash := hashFields(initialFields)

	if idempotencyKey != "" {
		o.reg.RLock()
		prior, seen := o.idempotency[idempotencyKey]
		o.reg.RUnlock()

		if seen {
			if prior.fieldsHash != hash {
				e, resumeToken, found := o.lookup(prior.submissionID)
				state := intake.SubmissionState("")
				if found {
					e.mu.Lock()
					state = e.machine.State()
					e.mu.Unlock()
				}
				return nil, intake.NewIntakeError(prior.submissionID, state, resumeToken, intake.ErrConflict,
					"idempotency key reused with different initial_fields", nil, nil)
			}
			env, ierr := o.GetEnvelope(ctx, prior.submissionID)
			return env, ierr
		}
	}

	submissionID := ids.NewSubmissionID()
	resumeToken, err := ids.NewResumeToken()
	if err != nil {
		return nil, intake.NewIntakeError(submissionID, intake.StateDraft, "", intake.ErrConflict, "failed to mint resume token", nil, nil)
	}

	machine := intake.NewStateMachine(submissionID, intake.StateDraft)
	createdEvent := intake.Event{
		EventID:      ids.NewEventID(),
		Type:         intake.EventSubmissionCreated,
		SubmissionID: submissionID,
		Timestamp:    time.Now().UTC(),
		Actor:        actor,
		State:        intake.StateDraft,
	}
	machine.RecordEvent(createdEvent)
	o.publish(ctx, createdEvent)

	fields := make(map[string]any, len(initialFields))
	for k, v := range initialFields {
		fields[k] = v
	}

	e := &entry{
		machine:     machine,
		fields:      fields,
		createdBy:   actor,
		ttlMillis:   ttlMs,
		createdAt:   time.Now().UTC(),
		resumeToken: resumeToken,
	}

	var missingFields []string
	if len(fields) > 0 {
		transitionEvent, err := machine.TransitionTo(intake.StateInProgress, actor)
		if err != nil {
			// draft -> in_progress is always legal; this would only fire on
			// a programmer error in the transition table.
			return nil, intake.NewIntakeError(submissionID, machine.State(), resumeToken, intake.ErrConflict, err.Error(), nil, nil)
		}
		o.publish(ctx, transitionEvent)

		result, verr := o.engine.Validate(fields)
		if verr != nil {
			return nil, intake.NewIntakeError(submissionID, machine.State(), resumeToken, intake.ErrInvalid, verr.Error(), nil, nil)
		}
		missingFields = result.MissingFields
		o.metrics.validated(o.intakeID, result.IsValid)
	}

	o.reg.Lock()
	o.submissions[submissionID] = e
	o.resumeTokens[resumeToken] = submissionID
	if idempotencyKey != "" {
		o.idempotency[idempotencyKey] = idempotencyRecord{submissionID: submissionID, fieldsHash: hash}
	}
	o.reg.Unlock()

	o.metrics.created(o.intakeID)

	if err := o.persist(ctx, submissionID); err != nil {
		o.logger.Error("runtime: failed to persist new submission", "submission_id", submissionID, "error", err)
	}

	return &Envelope{
		OK:            true,
		SubmissionID:  submissionID,
		State:         machine.State(),
		ResumeToken:   resumeToken,
		Schema:        json.RawMessage(o.schemaJSON),
		MissingFields: missingFields,
	}, nil
}

// GetSubmission returns the full detail envelope for submissionID.
func (o *Orchestrator) GetSubmission(ctx context.Context, submissionID string) (*DetailEnvelope, *intake.IntakeError) {
	e, resumeToken, found := o.lookup(submissionID)
	if !found {
		return nil, notFound(submissionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return &DetailEnvelope{
		OK:           true,
		SubmissionID: submissionID,
		IntakeID:     o.intakeID,
		State:        e.machine.State(),
		ResumeToken:  resumeToken,
		Fields:       e.fields,
		Events:       e.machine.Events(),
		CreatedBy:    e.createdBy,
	}, nil
}

// GetEnvelope is GetSubmission's shape collapsed to the shared success
// Envelope, used to replay idempotent creation results.
func (o *Orchestrator) GetEnvelope(ctx context.Context, submissionID string) (*Envelope, *intake.IntakeError) {
	e, resumeToken, found := o.lookup(submissionID)
	if !found {
		return nil, notFound(submissionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return &Envelope{
		OK:           true,
		SubmissionID: submissionID,
		State:        e.machine.State(),
		ResumeToken:  resumeToken,
		Schema:       json.RawMessage(o.schemaJSON),
	}, nil
}

// Resume resolves a resume token back to its submission's detail envelope.
func (o *Orchestrator) Resume(ctx context.Context, resumeToken string) (*DetailEnvelope, *intake.IntakeError) {
	o.reg.RLock()
	submissionID, ok := o.resumeTokens[resumeToken]
	o.reg.RUnlock()
	if !ok {
		return nil, intake.NewIntakeError("", "", resumeToken, intake.ErrNotFound, "unknown resume token", nil, nil)
	}

	event := intake.Event{
		EventID:      ids.NewEventID(),
		Type:         intake.EventHandoffResumed,
		SubmissionID: submissionID,
		Timestamp:    time.Now().UTC(),
	}
	o.publish(ctx, event)

	return o.GetSubmission(ctx, submissionID)
}

// UpdateField merges one field into the submission's document, re-runs
// validation, and transitions into (or stays within) in_progress.
func (o *Orchestrator) UpdateField(ctx context.Context, submissionID string, actor intake.Actor, path string, value any) (*Envelope, *intake.IntakeError) {
	e, resumeToken, found := o.lookup(submissionID)
	if !found {
		return nil, notFound(submissionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine.IsTerminal() {
		return nil, o.terminalError(submissionID, e, resumeToken)
	}

	e.fields[path] = value

	var transitionEvent *intake.Event
	if e.machine.State() != intake.StateInProgress {
		ev, err := e.machine.TransitionTo(intake.StateInProgress, actor)
		if err != nil {
			o.metrics.transitionFailed(o.intakeID)
			return nil, toConflict(submissionID, e.machine.State(), resumeToken, err)
		}
		transitionEvent = &ev
	}

	result, verr := o.engine.Validate(e.fields)
	if verr != nil {
		return nil, intake.NewIntakeError(submissionID, e.machine.State(), resumeToken, intake.ErrInvalid, verr.Error(), nil, nil)
	}
	o.metrics.validated(o.intakeID, result.IsValid)

	if transitionEvent != nil {
		o.publish(ctx, *transitionEvent)
		o.metrics.transitioned(o.intakeID, intake.StateInProgress)
	}

	if err := o.persist(ctx, submissionID); err != nil {
		o.logger.Error("runtime: failed to persist field update", "submission_id", submissionID, "error", err)
	}

	return &Envelope{
		OK:            true,
		SubmissionID:  submissionID,
		State:         e.machine.State(),
		ResumeToken:   resumeToken,
		MissingFields: result.MissingFields,
	}, nil
}

// Submit validates the accumulated fields and, if valid, transitions the
// submission to submitted.
func (o *Orchestrator) Submit(ctx context.Context, submissionID string, actor intake.Actor) (*Envelope, *intake.IntakeError) {
	e, resumeToken, found := o.lookup(submissionID)
	if !found {
		return nil, notFound(submissionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine.IsTerminal() {
		return nil, o.terminalError(submissionID, e, resumeToken)
	}

	result, verr := o.engine.Validate(e.fields)
	if verr != nil {
		return nil, intake.NewIntakeError(submissionID, e.machine.State(), resumeToken, intake.ErrInvalid, verr.Error(), nil, nil)
	}
	o.metrics.validated(o.intakeID, result.IsValid)

	if !result.IsValid {
		return nil, validationError(submissionID, e.machine.State(), resumeToken, result)
	}

	event, err := e.machine.TransitionTo(intake.StateSubmitted, actor)
	if err != nil {
		o.metrics.transitionFailed(o.intakeID)
		return nil, toConflict(submissionID, e.machine.State(), resumeToken, err)
	}
	o.publish(ctx, event)
	o.metrics.transitioned(o.intakeID, intake.StateSubmitted)

	if err := o.persist(ctx, submissionID); err != nil {
		o.logger.Error("runtime: failed to persist submit", "submission_id", submissionID, "error", err)
	}

	return &Envelope{OK: true, SubmissionID: submissionID, State: e.machine.State(), ResumeToken: resumeToken}, nil
}

// RequestReview transitions a submitted submission into needs_review.
func (o *Orchestrator) RequestReview(ctx context.Context, submissionID string, actor intake.Actor) (*Envelope, *intake.IntakeError) {
	return o.transitionPublic(ctx, submissionID, actor, intake.StateNeedsReview)
}

// Review records a human (or delegated) review decision: approve or
// reject a submission currently needing review.
func (o *Orchestrator) Review(ctx context.Context, submissionID string, actor intake.Actor, approve bool) (*Envelope, *intake.IntakeError) {
	target := intake.StateRejected
	if approve {
		target = intake.StateApproved
	}
	return o.transitionPublicWithPayload(ctx, submissionID, actor, target, map[string]any{
		"reviewed_by": actor.ID,
	})
}

// Finalize transitions an approved (or directly submitted) submission to
// its terminal finalized state.
func (o *Orchestrator) Finalize(ctx context.Context, submissionID string, actor intake.Actor) (*Envelope, *intake.IntakeError) {
	return o.transitionPublic(ctx, submissionID, actor, intake.StateFinalized)
}

// Cancel is legal from every non-terminal state.
func (o *Orchestrator) Cancel(ctx context.Context, submissionID string, actor intake.Actor) (*Envelope, *intake.IntakeError) {
	return o.transitionPublic(ctx, submissionID, actor, intake.StateCancelled)
}

// Expire is invoked by a Scheduler once a submission's ttl_ms has elapsed.
func (o *Orchestrator) Expire(ctx context.Context, submissionID string) error {
	_, ierr := o.transitionPublic(ctx, submissionID, intake.SystemActor(), intake.StateExpired)
	if ierr != nil {
		return ierr
	}
	return nil
}

// ExpirableSubmissions returns the IDs of non-terminal submissions whose
// ttl_ms has elapsed as of now; it is the scan function a Scheduler polls.
func (o *Orchestrator) ExpirableSubmissions(ctx context.Context) []string {
	o.reg.RLock()
	defer o.reg.RUnlock()

	var out []string
	now := time.Now().UTC()
	for id, e := range o.submissions {
		e.mu.Lock()
		if !e.machine.IsTerminal() && e.ttlMillis != nil {
			deadline := e.createdAt.Add(time.Duration(*e.ttlMillis) * time.Millisecond)
			if now.After(deadline) {
				out = append(out, id)
			}
		}
		e.mu.Unlock()
	}
	return out
}

func (o *Orchestrator) transitionPublic(ctx context.Context, submissionID string, actor intake.Actor, target intake.SubmissionState) (*Envelope, *intake.IntakeError) {
	return o.transitionPublicWithPayload(ctx, submissionID, actor, target, nil)
}

func (o *Orchestrator) transitionPublicWithPayload(ctx context.Context, submissionID string, actor intake.Actor, target intake.SubmissionState, extra map[string]any) (*Envelope, *intake.IntakeError) {
	e, resumeToken, found := o.lookup(submissionID)
	if !found {
		return nil, notFound(submissionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine.IsTerminal() {
		return nil, o.terminalError(submissionID, e, resumeToken)
	}

	event, err := e.machine.TransitionTo(target, actor)
	if err != nil {
		o.metrics.transitionFailed(o.intakeID)
		return nil, toConflict(submissionID, e.machine.State(), resumeToken, err)
	}
	for k, v := range extra {
		if event.Payload == nil {
			event.Payload = map[string]any{}
		}
		event.Payload[k] = v
	}
	o.publish(ctx, event)
	o.metrics.transitioned(o.intakeID, target)

	if err := o.persist(ctx, submissionID); err != nil {
		o.logger.Error("runtime: failed to persist transition", "submission_id", submissionID, "target_state", target, "error", err)
	}

	return &Envelope{OK: true, SubmissionID: submissionID, State: e.machine.State(), ResumeToken: resumeToken}, nil
}

func (o *Orchestrator) lookup(submissionID string) (*entry, string, bool) {
	o.reg.RLock()
	defer o.reg.RUnlock()
	e, ok := o.submissions[submissionID]
	if !ok {
		return nil, "", false
	}
	return e, e.resumeToken, true
}

// terminalError reports the taxonomy-specific error for an operation
// attempted against a submission already in a terminal state.
func (o *Orchestrator) terminalError(submissionID string, e *entry, resumeToken string) *intake.IntakeError {
	state := e.machine.State()
	errType := intake.ErrConflict
	switch state {
	case intake.StateExpired:
		errType = intake.ErrExpired
	case intake.StateCancelled:
		errType = intake.ErrCancelled
	}
	return intake.NewIntakeError(submissionID, state, resumeToken, errType, "submission is in a terminal state", nil, []intake.NextAction{{Action: intake.ActionCancel}})
}

func toConflict(submissionID string, state intake.SubmissionState, resumeToken string, cause error) *intake.IntakeError {
	return intake.NewIntakeError(submissionID, state, resumeToken, intake.ErrConflict, cause.Error(), nil, nil)
}

func notFound(submissionID string) *intake.IntakeError {
	return intake.NewIntakeError(submissionID, "", "", intake.ErrNotFound, "unknown submission_id", nil, nil)
}

// validationError converts a failed validation Result into the orchestrator
// error taxonomy: missing if every error is a required violation, invalid
// otherwise. next_actions direct the caller to collect each offending
// field.
func validationError(submissionID string, state intake.SubmissionState, resumeToken string, result *validation.Result) *intake.IntakeError {
	errType := intake.ErrMissing
	if len(result.InvalidFields) > 0 {
		errType = intake.ErrInvalid
	}

	next := make([]intake.NextAction, 0, len(result.Errors))
	for _, fe := range result.Errors {
		next = append(next, intake.NextAction{Action: intake.ActionCollectField, Field: fe.Path, Hint: fe.Message})
	}

	return intake.NewIntakeError(submissionID, state, resumeToken, errType, "submission data failed validation", result.Errors, next)
}

func (o *Orchestrator) publish(ctx context.Context, event intake.Event) {
	o.emitter.Emit(event)
	if o.sink == nil {
		return
	}
	if err := o.sink.Publish(ctx, event); err != nil {
		o.logger.Warn("runtime: event sink publish failed", "event_id", event.EventID, "error", err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, submissionID string) error {
	o.reg.RLock()
	e, ok := o.submissions[submissionID]
	o.reg.RUnlock()
	if !ok {
		return fmt.Errorf("runtime: persist called for unknown submission %q", submissionID)
	}

	sid, state := e.machine.Serialize()
	submission := intake.Submission{
		SubmissionID: sid,
		IntakeID:     o.intakeID,
		State:        state,
		Fields:       e.fields,
		ResumeToken:  e.resumeToken,
		CreatedBy:    e.createdBy,
		Events:       e.machine.Events(),
		TTLMillis:    e.ttlMillis,
		CreatedAt:    e.createdAt,
	}

	return o.storage.Save(ctx, &Record{Submission: submission})
}

func hashFields(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
