package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/intake/intake"
	"github.com/c360studio/intake/runtime"
	"github.com/c360studio/intake/storage"
)

// startEmbeddedNATS boots an in-process JetStream-enabled server for tests,
// mirroring the embedded-server path the CLI uses when no external NATS
// URL is configured.
func startEmbeddedNATS(t *testing.T) jetstream.JetStream {
	t.Helper()

	opts := &server.Options{Port: -1, JetStream: true, NoLog: true, NoSigs: true}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	conn, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	require.NoError(t, err)
	return js
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	js := startEmbeddedNATS(t)

	store, err := storage.NewStore(ctx, js, "job-application")
	require.NoError(t, err)

	sub := intake.Submission{
		SubmissionID: "sub_abc123",
		IntakeID:     "job-application",
		State:        intake.StateInProgress,
		Fields:       map[string]any{"name": "Ada"},
		ResumeToken:  "rt_token",
		CreatedBy:    intake.Actor{Kind: intake.ActorAgent, ID: "agent-1"},
		Events: []intake.Event{
			{EventID: "evt_1", Type: intake.EventSubmissionCreated, SubmissionID: "sub_abc123", State: intake.StateDraft},
		},
	}

	require.NoError(t, store.Save(ctx, &runtime.Record{Submission: sub}))

	loaded, err := store.Load(ctx, "sub_abc123")
	require.NoError(t, err)
	require.Equal(t, sub.SubmissionID, loaded.Submission.SubmissionID)
	require.Equal(t, sub.State, loaded.Submission.State)
	require.Equal(t, sub.Fields["name"], loaded.Submission.Fields["name"])
	require.Len(t, loaded.Submission.Events, 1)
}

func TestStoreLoadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	js := startEmbeddedNATS(t)

	store, err := storage.NewStore(ctx, js, "job-application")
	require.NoError(t, err)

	_, err = store.Load(ctx, "sub_does_not_exist")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreListReturnsAllKeys(t *testing.T) {
	ctx := context.Background()
	js := startEmbeddedNATS(t)

	store, err := storage.NewStore(ctx, js, "job-application")
	require.NoError(t, err)

	for _, id := range []string{"sub_1", "sub_2"} {
		require.NoError(t, store.Save(ctx, &runtime.Record{Submission: intake.Submission{SubmissionID: id}}))
	}

	keys, err := store.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"sub_1", "sub_2"}, keys)
}
