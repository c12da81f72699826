package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

func TestEmbeddedQueue_ProcessesEnqueuedJob(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{result: &pipeline.Result{Success: true}}
	worker := NewWorker(store, runner, testLogger(), time.Minute)

	queue := NewEmbeddedQueue(store, worker, testLogger())
	queue.SetPollInterval(10 * time.Millisecond)

	ctx := context.Background()
	payload, err := json.Marshal(GenerationRequest{Request: "build a todo app"})
	require.NoError(t, err)
	job := &Job{ID: NewJobID(), Payload: string(payload)}
	require.NoError(t, queue.Enqueue(ctx, job))

	require.NoError(t, queue.Start(ctx))
	defer queue.Stop()

	require.Eventually(t, func() bool {
		got, err := store.Get(ctx, job.ID)
		return err == nil && got.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "build a todo app", runner.request)
}

func TestEmbeddedQueue_StartWithoutWorker(t *testing.T) {
	store := newTestStore(t)

	queue := NewEmbeddedQueue(store, nil, testLogger())
	err := queue.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no worker")
}

func TestEmbeddedQueue_StartTwice(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, &fakeRunner{result: &pipeline.Result{Success: true}}, testLogger(), 0)

	queue := NewEmbeddedQueue(store, worker, testLogger())
	queue.SetPollInterval(10 * time.Millisecond)

	require.NoError(t, queue.Start(context.Background()))
	defer queue.Stop()

	err := queue.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestEmbeddedQueue_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	worker := NewWorker(store, &fakeRunner{result: &pipeline.Result{Success: true}}, testLogger(), 0)

	queue := NewEmbeddedQueue(store, worker, testLogger())
	queue.SetPollInterval(10 * time.Millisecond)

	// Stop before Start is a no-op.
	queue.Stop()

	require.NoError(t, queue.Start(context.Background()))
	queue.Stop()
	queue.Stop()
}

func TestEmbeddedQueue_EnqueueOnlyStillPersists(t *testing.T) {
	store := newTestStore(t)

	// An enqueue-only queue (no worker) still writes the pending row; a
	// separate worker process picks it up.
	queue := NewEmbeddedQueue(store, nil, testLogger())

	job := &Job{ID: NewJobID(), Payload: "{}"}
	require.NoError(t, queue.Enqueue(context.Background(), job))

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
