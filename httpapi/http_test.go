package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/intake/httpapi"
	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/runtime"
)

const testSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {"name": {"type": "string"}},
  "required": ["name"]
}`

type memStorage struct {
	mu      sync.Mutex
	records map[string]*runtime.Record
}

func (s *memStorage) Load(ctx context.Context, submissionID string) (*runtime.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[submissionID], nil
}

func (s *memStorage) Save(ctx context.Context, record *runtime.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Submission.SubmissionID] = record
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	orch, err := runtime.New(runtime.Config{
		IntakeID: "job-application",
		Schema:   []byte(testSchema),
		Storage:  &memStorage{records: make(map[string]*runtime.Record)},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	httpapi.NewHandler(orch, nil).Register("/v1", mux)
	return httptest.NewServer(mux)
}

func TestCreateAndGetSubmission(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	createBody := bytes.NewBufferString(`{"actor": {"kind": "human", "id": "u1"}}`)
	resp, err := http.Post(srv.URL+"/v1/submissions", "application/json", createBody)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created runtime.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, created.OK)
	require.NotEmpty(t, created.SubmissionID)

	getResp, err := http.Get(srv.URL + "/v1/submissions/" + created.SubmissionID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var detail runtime.DetailEnvelope
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&detail))
	require.Equal(t, created.SubmissionID, detail.SubmissionID)
}

func TestGetUnknownSubmissionReturns404(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/submissions/sub_does_not_exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		OK bool `json:"ok"`
		*intake.IntakeError
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.OK)
	require.Equal(t, intake.ErrNotFound, body.Err.Type)
}

func TestSubmitWithoutRequiredFieldReturns422(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	createBody := bytes.NewBufferString(`{"actor": {"kind": "human", "id": "u1"}}`)
	resp, err := http.Post(srv.URL+"/v1/submissions", "application/json", createBody)
	require.NoError(t, err)
	var created runtime.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	submitBody := bytes.NewBufferString(`{"actor": {"kind": "human", "id": "u1"}}`)
	submitResp, err := http.Post(srv.URL+"/v1/submissions/"+created.SubmissionID+"/submit", "application/json", submitBody)
	require.NoError(t, err)
	defer submitResp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, submitResp.StatusCode)
}
