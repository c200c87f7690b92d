package runtime_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/runtime"
)

const jobApplicationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "email": {"type": "string"}
  },
  "required": ["name", "email"]
}`

type memStorage struct {
	mu      sync.Mutex
	records map[string]*runtime.Record
}

func newMemStorage() *memStorage {
	return &memStorage{records: make(map[string]*runtime.Record)}
}

func (s *memStorage) Load(ctx context.Context, submissionID string) (*runtime.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[submissionID]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (s *memStorage) Save(ctx context.Context, record *runtime.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Submission.SubmissionID] = record
	return nil
}

func newTestOrchestrator(t *testing.T) *runtime.Orchestrator {
	t.Helper()
	orch, err := runtime.New(runtime.Config{
		IntakeID: "job-application",
		Schema:   []byte(jobApplicationSchema),
		Storage:  newMemStorage(),
	})
	require.NoError(t, err)
	return orch
}

func testActor() intake.Actor {
	return intake.Actor{Kind: intake.ActorAgent, ID: "agent-1"}
}

func TestCreateSubmissionIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)

	first, ierr := orch.CreateSubmission(ctx, testActor(), "idem-1", map[string]any{"name": "Ada"}, nil)
	require.Nil(t, ierr)
	require.True(t, first.OK)

	second, ierr := orch.CreateSubmission(ctx, testActor(), "idem-1", map[string]any{"name": "Ada"}, nil)
	require.Nil(t, ierr)
	require.Equal(t, first.SubmissionID, second.SubmissionID)
	require.Equal(t, first.ResumeToken, second.ResumeToken)
}

func TestCreateSubmissionIdempotencyKeyReuseWithDifferentFieldsConflicts(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)

	_, ierr := orch.CreateSubmission(ctx, testActor(), "idem-1", map[string]any{"name": "Ada"}, nil)
	require.Nil(t, ierr)

	_, ierr = orch.CreateSubmission(ctx, testActor(), "idem-1", map[string]any{"name": "Grace"}, nil)
	require.NotNil(t, ierr)
	require.Equal(t, intake.ErrConflict, ierr.Err.Type)
}

func TestFullApprovalWorkflow(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)
	actor := testActor()

	created, ierr := orch.CreateSubmission(ctx, actor, "", nil, nil)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateDraft, created.State)

	_, ierr = orch.UpdateField(ctx, created.SubmissionID, actor, "name", "Ada Lovelace")
	require.Nil(t, ierr)
	env, ierr := orch.UpdateField(ctx, created.SubmissionID, actor, "email", "ada@example.com")
	require.Nil(t, ierr)
	require.Equal(t, intake.StateInProgress, env.State)
	require.Empty(t, env.MissingFields)

	submitted, ierr := orch.Submit(ctx, created.SubmissionID, actor)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateSubmitted, submitted.State)

	reviewing, ierr := orch.RequestReview(ctx, created.SubmissionID, actor)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateNeedsReview, reviewing.State)

	approved, ierr := orch.Review(ctx, created.SubmissionID, actor, true)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateApproved, approved.State)

	finalized, ierr := orch.Finalize(ctx, created.SubmissionID, actor)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateFinalized, finalized.State)

	detail, ierr := orch.GetSubmission(ctx, created.SubmissionID)
	require.Nil(t, ierr)
	require.Equal(t, intake.StateFinalized, detail.State)
	require.NotEmpty(t, detail.Events)
}

func TestSubmitWithMissingFieldsReturnsMissing(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)
	actor := testActor()

	created, ierr := orch.CreateSubmission(ctx, actor, "", map[string]any{"name": "Ada"}, nil)
	require.Nil(t, ierr)

	_, ierr = orch.Submit(ctx, created.SubmissionID, actor)
	require.NotNil(t, ierr)
	require.Equal(t, intake.ErrMissing, ierr.Err.Type)
	require.NotEmpty(t, ierr.Err.Fields)
}

func TestOperationOnCancelledSubmissionReturnsCancelled(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)
	actor := testActor()

	created, ierr := orch.CreateSubmission(ctx, actor, "", nil, nil)
	require.Nil(t, ierr)

	_, ierr = orch.Cancel(ctx, created.SubmissionID, actor)
	require.Nil(t, ierr)

	_, ierr = orch.Submit(ctx, created.SubmissionID, actor)
	require.NotNil(t, ierr)
	require.Equal(t, intake.ErrCancelled, ierr.Err.Type)
	require.False(t, ierr.Err.Retryable)
}

func TestGetSubmissionUnknownIDReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)

	_, ierr := orch.GetSubmission(ctx, "sub_does_not_exist")
	require.NotNil(t, ierr)
	require.Equal(t, intake.ErrNotFound, ierr.Err.Type)
}

func TestResumeUnknownTokenReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)

	_, ierr := orch.Resume(ctx, "rt_does_not_exist")
	require.NotNil(t, ierr)
	require.Equal(t, intake.ErrNotFound, ierr.Err.Type)
}

func TestResumeResolvesToken(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)
	actor := testActor()

	created, ierr := orch.CreateSubmission(ctx, actor, "", nil, nil)
	require.Nil(t, ierr)

	detail, ierr := orch.Resume(ctx, created.ResumeToken)
	require.Nil(t, ierr)
	require.Equal(t, created.SubmissionID, detail.SubmissionID)
}

func TestExpirableSubmissionsSkipsTerminalAndUnexpired(t *testing.T) {
	ctx := context.Background()
	orch := newTestOrchestrator(t)
	actor := testActor()

	ttl := int64(1000 * 60 * 60)
	longLived, ierr := orch.CreateSubmission(ctx, actor, "", nil, &ttl)
	require.Nil(t, ierr)

	_, ierr = orch.CreateSubmission(ctx, actor, "", nil, nil)
	require.Nil(t, ierr)

	expired := orch.ExpirableSubmissions(ctx)
	for _, id := range expired {
		require.NotEqual(t, longLived.SubmissionID, id)
	}
}
