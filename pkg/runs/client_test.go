package runs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/schema"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(api.NewClient(api.Config{BaseURL: srv.URL}), nil)
}

func writeOK(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": data})
}

// --- Listing ---

func TestList_QueryEncoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/api/runs", r.URL.Path)
		assert.Equal(t, "nightly", r.URL.Query().Get("q"))
		assert.Equal(t, "RUNNING", r.URL.Query().Get("status"))
		assert.Equal(t, "wf-1", r.URL.Query().Get("workflow_id"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		writeOK(w, map[string]any{"runs": []schema.Run{{ID: "run-1"}}})
	})

	runs, stale, err := c.List(context.Background(), Query{
		Q: "nightly", Status: schema.RunStatusRunning, WorkflowID: "wf-1", Limit: 25,
	})
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, runs, 1)
}

func TestList_EmptyQueryOmitsParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		writeOK(w, map[string]any{"runs": []schema.Run{}})
	})

	_, _, err := c.List(context.Background(), Query{})
	require.NoError(t, err)
}

func TestList_StaleResponseDropped(t *testing.T) {
	firstArrived := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(firstArrived)
			<-releaseFirst
			writeOK(w, map[string]any{"runs": []schema.Run{{ID: "old"}}})
			return
		}
		writeOK(w, map[string]any{"runs": []schema.Run{{ID: "new"}}})
	})

	type result struct {
		runs  []schema.Run
		stale bool
		err   error
	}
	firstDone := make(chan result, 1)
	go func() {
		runs, stale, err := c.List(context.Background(), Query{})
		firstDone <- result{runs, stale, err}
	}()

	// The slow request holds its token; a newer list supersedes it.
	<-firstArrived
	runs, stale, err := c.List(context.Background(), Query{})
	require.NoError(t, err)
	assert.False(t, stale)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	close(releaseFirst)
	select {
	case first := <-firstDone:
		require.NoError(t, first.err)
		assert.True(t, first.stale, "superseded response must be flagged stale")
		assert.Nil(t, first.runs)
	case <-time.After(2 * time.Second):
		t.Fatal("first list never returned")
	}
}

// --- Detail & control ---

func TestGetAndSummary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tools/api/runs/run-1":
			writeOK(w, map[string]any{"run": schema.Run{ID: "run-1", Status: schema.RunStatusRunning}})
		case "/tools/api/runs/run-1/summary":
			writeOK(w, map[string]any{"run": schema.Run{
				ID:     "run-1",
				Status: schema.RunStatusCompleted,
				Manifest: &schema.RunManifest{
					Buckets: map[string][]any{"domains": {"a.example.com"}},
				},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	run, err := c.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusRunning, run.Status)

	summary, err := c.Summary(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, summary.Status)
	require.NotNil(t, summary.Manifest)
	assert.Len(t, summary.Manifest.Buckets["domains"], 1)
}

func TestQuerySummary_FiltersManifest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/api/runs/run-1/summary", r.URL.Path)
		writeOK(w, map[string]any{"run": schema.Run{
			ID:     "run-1",
			Status: schema.RunStatusCompleted,
			Manifest: &schema.RunManifest{
				Buckets: map[string][]any{
					"domains": {"api.example.com", "www.example.com", "api.internal.example.com"},
				},
			},
		}})
	})

	out, err := c.QuerySummary(context.Background(), "run-1", `.buckets.domains[] | select(test("api"))`)
	require.NoError(t, err)
	assert.Equal(t, []any{"api.example.com", "api.internal.example.com"}, out)
}

func TestQuerySummary_BadProgramRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, map[string]any{"run": schema.Run{ID: "run-1", Status: schema.RunStatusCompleted}})
	})

	_, err := c.QuerySummary(context.Background(), "run-1", ".buckets[")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestControls(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		paths = append(paths, r.URL.Path)
		writeOK(w, map[string]any{"run": schema.Run{ID: "run-1"}})
	})

	ctx := context.Background()
	_, err := c.Pause(ctx, "run-1")
	require.NoError(t, err)
	_, err = c.Resume(ctx, "run-1")
	require.NoError(t, err)
	_, err = c.Cancel(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/tools/api/runs/run-1/pause",
		"/tools/api/runs/run-1/resume",
		"/tools/api/runs/run-1/cancel",
	}, paths)
}

func TestRetry_ReturnsNewRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/api/runs/run-1/retry", r.URL.Path)
		writeOK(w, map[string]any{"run": schema.Run{ID: "run-2", WorkflowID: "wf-1", Status: schema.RunStatusQueued}})
	})

	run, err := c.Retry(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID, "retry creates a distinct run resource")
}
