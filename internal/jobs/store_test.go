package jobs

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grump-ai/grump-engine/shared/database"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a throwaway sqlite database and initializes the job
// tables on it.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := NewStore(client.DB(), testLogger())
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{
		ID:        NewJobID(),
		SessionID: "sess-1",
		Payload:   `{"request":"build a todo app"}`,
	}
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, job.Payload, got.Payload)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.Terminal())
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{ID: NewJobID(), Payload: `{"request":"first"}`}
	require.NoError(t, store.Create(ctx, job))

	// A second insert with the same ID must not clobber the original row.
	dup := &Job{ID: job.ID, Payload: `{"request":"second"}`}
	require.NoError(t, store.Create(ctx, dup))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"request":"first"}`, got.Payload)

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "job_ship_0_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = NewJobID() + string(rune('a'+i))
		job := &Job{
			ID:        ids[i],
			Payload:   "{}",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.Create(ctx, job))
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
}

func TestStore_ClaimNextPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	older := &Job{ID: NewJobID() + "a", Payload: "{}", CreatedAt: base}
	newer := &Job{ID: NewJobID() + "b", Payload: "{}", CreatedAt: base.Add(time.Minute)}
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, claimed.ID)
	assert.Equal(t, StatusRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	second, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, second.ID)

	_, err = store.ClaimNextPending(ctx)
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestStore_OrderingWithinOneSecond(t *testing.T) {
	// A whole-second timestamp must sort before a fractional one in the same
	// second. Variable-width fractions would put "...:05Z" after "...:05.5Z"
	// in the TEXT column's lexicographic order.
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 5, 0, time.UTC)

	whole := &Job{ID: NewJobID() + "a", Payload: "{}", CreatedAt: base}
	fractional := &Job{ID: NewJobID() + "b", Payload: "{}", CreatedAt: base.Add(500 * time.Millisecond)}
	require.NoError(t, store.Create(ctx, whole))
	require.NoError(t, store.Create(ctx, fractional))

	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, whole.ID, claimed.ID)

	list, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fractional.ID, list[0].ID)
	assert.Equal(t, whole.ID, list[1].ID)
}

func TestStore_ClaimTwiceLosesRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{ID: NewJobID(), Payload: "{}"}
	require.NoError(t, store.Create(ctx, job))

	_, err := store.Claim(ctx, job.ID)
	require.NoError(t, err)

	// The status guard rejects a second claim of the same row.
	_, err = store.Claim(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNoPendingJobs)
}

func TestStore_MarkCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{ID: NewJobID(), Payload: "{}"}
	require.NoError(t, store.Create(ctx, job))
	_, err := store.Claim(ctx, job.ID)
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted(ctx, job.ID, `{"success":true}`))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, `{"success":true}`, got.Result)
	assert.Empty(t, got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.Terminal())
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestStore_MarkFailed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &Job{ID: NewJobID(), Payload: "{}"}
	require.NoError(t, store.Create(ctx, job))

	require.NoError(t, store.MarkFailed(ctx, job.ID, "intent stage failed"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "intent stage failed", got.Error)
	assert.Empty(t, got.Result)
	assert.True(t, got.Terminal())
}

func TestStore_FinishUnknownJob(t *testing.T) {
	store := newTestStore(t)

	err := store.MarkCompleted(context.Background(), "job_ship_0_missing", "{}")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobIDs(t *testing.T) {
	shipID := NewJobID()
	testID := NewSandboxJobID()

	assert.True(t, len(shipID) > len("job_ship_"))
	assert.Contains(t, shipID, "job_ship_")
	assert.Contains(t, testID, "job_test_")
	assert.NotEqual(t, NewJobID(), NewJobID())

	assert.True(t, IsSandboxID(testID))
	assert.False(t, IsSandboxID(shipID))
}
