package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grump-ai/grump-engine/internal/jobs"
	"github.com/grump-ai/grump-engine/shared/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestHandler wires a handler over a throwaway sqlite store with
// enqueue-only queues, the same shape the API service runs with.
func newTestHandler(t *testing.T) (*GenerationHandler, *jobs.Store, *gin.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "jobs.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	store := jobs.NewStore(client.DB(), logger)
	require.NoError(t, store.Init(context.Background()))

	h := NewGenerationHandler(&Dependencies{
		Logger:   logger,
		DBClient: client,
		Store:    store,
		Queue:    jobs.NewEmbeddedQueue(store, nil, logger),
		Sandbox:  jobs.NewSandboxQueue(store, nil, logger),
	})

	r := gin.New()
	r.POST("/api/v1/generations", h.CreateGeneration)
	r.GET("/api/v1/generations", h.ListGenerations)
	r.GET("/api/v1/generations/:job_id", h.GetGeneration)
	r.POST("/api/v1/sandbox-runs", h.CreateSandboxRun)
	r.GET("/api/v1/sandbox-runs/:job_id", h.GetSandboxRun)

	return h, store, r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateGeneration(t *testing.T) {
	_, store, r := newTestHandler(t)

	w := doRequest(r, http.MethodPost, "/api/v1/generations",
		`{"request":"build a todo app","tech_stack":["react"],"session_id":"sess-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobID, _ := resp["job_id"].(string)
	assert.True(t, strings.HasPrefix(jobID, "job_ship_"))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "sess-1", resp["session_id"])

	job, err := store.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Contains(t, job.Payload, "build a todo app")
}

func TestCreateGeneration_MissingRequest(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := doRequest(r, http.MethodPost, "/api/v1/generations", `{"tech_stack":["react"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGeneration_CallerSuppliedJobID(t *testing.T) {
	_, _, r := newTestHandler(t)
	body := `{"request":"build a todo app","job_id":"job_ship_1_caller01"}`

	w := doRequest(r, http.MethodPost, "/api/v1/generations", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "job_ship_1_caller01")

	// Retrying with the same ID is accepted and does not duplicate the job.
	w = doRequest(r, http.MethodPost, "/api/v1/generations", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/generations", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Generations []json.RawMessage `json:"generations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Generations, 1)
}

func TestGetGeneration(t *testing.T) {
	_, store, r := newTestHandler(t)

	job := &jobs.Job{ID: jobs.NewJobID(), Payload: "{}"}
	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, store.MarkCompleted(context.Background(), job.ID, `{"success":true}`))

	w := doRequest(r, http.MethodGet, "/api/v1/generations/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, job.ID, resp["job_id"])
	assert.Equal(t, "completed", resp["status"])

	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["success"])
}

func TestGetGeneration_NotFound(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := doRequest(r, http.MethodGet, "/api/v1/generations/job_ship_0_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListGenerations_InvalidLimit(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := doRequest(r, http.MethodGet, "/api/v1/generations?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/generations?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSandboxRun(t *testing.T) {
	_, store, r := newTestHandler(t)

	w := doRequest(r, http.MethodPost, "/api/v1/sandbox-runs",
		`{"project_path":"/tmp/generated/todo-app","session_id":"sess-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobID, _ := resp["job_id"].(string)
	assert.True(t, strings.HasPrefix(jobID, "job_test_"))

	job, err := store.GetSandbox(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/generated/todo-app", job.ProjectPath)
}

func TestCreateSandboxRun_MissingProjectPath(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := doRequest(r, http.MethodPost, "/api/v1/sandbox-runs", `{"session_id":"sess-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSandboxRun_NotFound(t *testing.T) {
	_, _, r := newTestHandler(t)

	w := doRequest(r, http.MethodGet, "/api/v1/sandbox-runs/job_test_0_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
