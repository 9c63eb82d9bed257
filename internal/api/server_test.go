package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/config"
	"github.com/wrenlabs/quill/internal/progress"
	"github.com/wrenlabs/quill/internal/progress/sinks"
	"github.com/wrenlabs/quill/internal/signing"
	memorystorage "github.com/wrenlabs/quill/internal/storage/memory"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, *stubRuns, *memorystorage.RunStore, *sinks.Store) {
	t.Helper()
	runs := &stubRuns{id: "run-1", active: map[string]bool{}}
	store := memorystorage.NewRunStore()
	signer := signing.NewDefaultManager(signing.ManagerConfig{})
	snapshot := sinks.NewStore()
	creds := signing.Credentials{"app_secret": "server-secret"}
	return NewServer(runs, store, signer, creds, snapshot, cfg, nil), runs, store, snapshot
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestHealthEndpoints checks liveness and readiness respond without auth.
func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

// TestSignEndpoint checks explicit-scheme signing with server credentials.
func TestSignEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	body := `{"scheme":"hmac-sha256","params":{"q":"laptop","timestamp":"1700000000","nonce":"n1"}}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/sign", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scheme    string            `json:"scheme"`
		Signature string            `json:"signature"`
		Params    map[string]string `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hmac-sha256", resp.Scheme)
	require.Len(t, resp.Signature, 64)
	require.Equal(t, resp.Signature, resp.Params["sign"])
}

// TestSignEndpointAutoDetect checks scheme detection when none is named.
func TestSignEndpointAutoDetect(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	body := `{"params":{"q":"laptop","timestamp":"1700000000","nonce":"n1"}}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/sign", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"scheme":"hmac-sha256"`)
}

// TestSignEndpointErrors maps signing failures onto HTTP statuses.
func TestSignEndpointErrors(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/sign", `{"scheme":"rot13","params":{"a":"1"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Request credentials override the server bundle; an empty override is
	// missing the secret.
	rec = doJSON(t, h, http.MethodPost, "/v1/sign",
		`{"scheme":"hmac-sha256","params":{"a":"1"},"credentials":{"app_id":"x"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/sign", `{"params":{}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/sign", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestSubmitRun checks valid submissions return 202 with the run ID.
func TestSubmitRun(t *testing.T) {
	t.Parallel()

	srv, runs, _, _ := newTestServer(t, config.Config{})
	body := `{"tasks":[{"url":"https://shop.example/api"}],"concurrency":2}`
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
	require.Equal(t, 2, runs.lastParams.Concurrency)
}

// TestSubmitRunValidation checks malformed submissions never reach the
// runner.
func TestSubmitRunValidation(t *testing.T) {
	t.Parallel()

	srv, runs, _, _ := newTestServer(t, config.Config{})
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/runs", `{"tasks":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs", `{"tasks":[{"method":"GET"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/runs", `{{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Zero(t, runs.submits)
}

// TestRunStatusIncludesProgress checks the status payload folds in the
// snapshot sink.
func TestRunStatusIncludesProgress(t *testing.T) {
	t.Parallel()

	srv, _, store, snapshot := newTestServer(t, config.Config{})
	require.NoError(t, store.CreateRun(context.Background(), agent.Run{
		ID: "run-7", Status: agent.RunStatusRunning, Submitted: time.Now().UTC(),
	}))
	require.NoError(t, snapshot.Consume(context.Background(), []progress.Event{
		{RunID: "run-7", TS: time.Now(), Stage: progress.StageTaskDone, Completed: 2, Total: 5},
	}))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/runs/run-7/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Run      agent.Run `json:"run"`
		Progress struct {
			Completed int    `json:"completed"`
			Total     int    `json:"total"`
			Stage     string `json:"stage"`
		} `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, agent.RunStatusRunning, resp.Run.Status)
	require.Equal(t, 2, resp.Progress.Completed)
	require.Equal(t, 5, resp.Progress.Total)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/runs/ghost/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestRunResult checks the result payload carries run metadata and task rows.
func TestRunResult(t *testing.T) {
	t.Parallel()

	srv, _, store, _ := newTestServer(t, config.Config{})
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, agent.Run{ID: "run-8", Status: agent.RunStatusSucceeded}))
	require.NoError(t, store.RecordTask(ctx, agent.TaskRecord{
		RunID: "run-8", TaskID: "run-8-task-0", Status: "succeeded", Attempts: 1,
	}))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/v1/runs/run-8/result", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res agent.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "run-8", res.Run.ID)
	require.Len(t, res.Tasks, 1)
	require.Equal(t, "run-8-task-0", res.Tasks[0].TaskID)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/v1/runs/ghost/result", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestCancelRun covers the three cancellation outcomes: unknown run, known
// but inactive, and active.
func TestCancelRun(t *testing.T) {
	t.Parallel()

	srv, runs, store, _ := newTestServer(t, config.Config{})
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, agent.Run{ID: "run-live", Status: agent.RunStatusRunning}))
	require.NoError(t, store.CreateRun(ctx, agent.Run{ID: "run-done", Status: agent.RunStatusSucceeded}))
	runs.active["run-live"] = true

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/ghost/cancel", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/run-done/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/v1/runs/run-live/cancel", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"cancelling"`)
}

// TestAPIKeyAuth checks /v1 routes demand the key while health stays open.
func TestAPIKeyAuth(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sesame"
	srv, _, _, _ := newTestServer(t, cfg)
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/v1/sign", `{"params":{"a":"1"}}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/sign",
		strings.NewReader(`{"scheme":"hmac-sha256","params":{"timestamp":"1","nonce":"n"}}`))
	req.Header.Set("X-API-Key", "sesame")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Query-parameter form works too.
	rec = doJSON(t, h, http.MethodPost, "/v1/sign?api_key=sesame", `{"params":{"timestamp":"1","nonce":"n"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestRequestIDHeader checks every response carries a request ID.
func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv, _, _, _ := newTestServer(t, config.Config{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

// stubRuns records submissions and answers cancels from a fixed set.
type stubRuns struct {
	id         string
	submits    int
	lastParams agent.RunParameters
	active     map[string]bool
}

func (s *stubRuns) Submit(_ context.Context, params agent.RunParameters) (string, error) {
	s.submits++
	s.lastParams = params
	return s.id, nil
}

func (s *stubRuns) Cancel(runID string) bool {
	return s.active[runID]
}
