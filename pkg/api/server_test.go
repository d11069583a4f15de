package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/miser/pkg/results"
	"github.com/odvcencio/miser/pkg/solver"
	"github.com/odvcencio/miser/pkg/telemetry"
)

func testServer(t *testing.T) (*Server, *results.Store) {
	t.Helper()
	store, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewServer("127.0.0.1:0", store, telemetry.NewHub()), store
}

func seedResult(t *testing.T, store *results.Store, taskID, mode string) *solver.Result {
	t.Helper()
	r := &solver.Result{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		Mode:      mode,
		Budget:    3,
		Attempted: 1,
		Success:   true,
		Patch:     "diff --git a/x b/x\n",
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.Save(context.Background(), r))
	return r
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	server, _ := testServer(t)

	rec := get(t, server.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rec := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListResults(t *testing.T) {
	server, store := testServer(t)
	seedResult(t, store, "t-1", "adaptive")
	seedResult(t, store, "t-2", "fixed")

	rec := get(t, server.Handler(), "/api/v1/results")
	require.Equal(t, http.StatusOK, rec.Code)

	var list []solver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = get(t, server.Handler(), "/api/v1/results?mode=fixed")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "t-2", list[0].TaskID)
}

func TestListResultsBadLimit(t *testing.T) {
	server, _ := testServer(t)

	rec := get(t, server.Handler(), "/api/v1/results?limit=banana")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListResultsEmpty(t *testing.T) {
	server, _ := testServer(t)

	rec := get(t, server.Handler(), "/api/v1/results")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetResult(t *testing.T) {
	server, store := testServer(t)
	saved := seedResult(t, store, "t-1", "adaptive")

	rec := get(t, server.Handler(), "/api/v1/results/"+saved.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got solver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "t-1", got.TaskID)

	rec = get(t, server.Handler(), "/api/v1/results/no-such-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummary(t *testing.T) {
	server, store := testServer(t)
	seedResult(t, store, "t-1", "adaptive")

	rec := get(t, server.Handler(), "/api/v1/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []results.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "adaptive", summaries[0].Mode)
	assert.Equal(t, 1, summaries[0].Tasks)
}
