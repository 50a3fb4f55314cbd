package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/server"
	"github.com/whatsnext/whatsnext/internal/store/memory"
	"github.com/whatsnext/whatsnext/internal/types"
)

func newTestAPI(t *testing.T, opts server.Options) (*httptest.Server, *engine.Engine) {
	t.Helper()
	e := engine.New(memory.New(), nil)
	srv := server.New(e, logging.NewCLI(), opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, e
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHandleHealthAndCheckDB(t *testing.T) {
	ts, _ := newTestAPI(t, server.Options{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/checkdb", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleUpdateJob_StatusFieldRoutesThroughTransition(t *testing.T) {
	ts, e := newTestAPI(t, server.Options{})
	ctx := t.Context()

	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "train.sh", 1, 0)
	require.NoError(t, err)
	job, err := e.CreateJob(ctx, proj.ID, task.ID, "exp-1", nil, 0, nil)
	require.NoError(t, err)

	_, err = e.FetchNext(ctx, proj.ID, nil)
	require.NoError(t, err)

	var updated struct {
		Job types.Job `json:"job"`
	}
	resp := doJSON(t, http.MethodPut, fmt.Sprintf("%s/jobs/%d", ts.URL, job.ID),
		map[string]string{"status": string(types.StatusRunning)}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, types.StatusRunning, updated.Job.Status)

	fresh, err := e.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusRunning, fresh.Status)
}

func TestHandleUpdateJob_IllegalTransitionRejected(t *testing.T) {
	ts, e := newTestAPI(t, server.Options{})
	ctx := t.Context()

	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "train.sh", 1, 0)
	require.NoError(t, err)
	job, err := e.CreateJob(ctx, proj.ID, task.ID, "exp-1", nil, 0, nil)
	require.NoError(t, err)

	// PENDING cannot jump straight to RUNNING without first being dispatched.
	resp := doJSON(t, http.MethodPut, fmt.Sprintf("%s/jobs/%d", ts.URL, job.ID),
		map[string]string{"status": string(types.StatusRunning)}, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBatchCreateJobs(t *testing.T) {
	ts, e := newTestAPI(t, server.Options{})
	ctx := t.Context()

	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "train.sh", 1, 0)
	require.NoError(t, err)

	var out map[string]any
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/projects/%d/jobs/batch", ts.URL, proj.ID),
		map[string]any{
			"jobs": []map[string]any{
				{"task_id": task.ID, "name": "a"},
				{"task_id": task.ID, "name": "b"},
			},
		}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(2), out["created"])

	jobs, err := e.ListJobs(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
}

func TestHandleDeleteQueue(t *testing.T) {
	ts, e := newTestAPI(t, server.Options{})
	ctx := t.Context()

	proj, err := e.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := e.CreateTask(ctx, proj.ID, "train", "train.sh", 1, 0)
	require.NoError(t, err)
	_, err = e.CreateJob(ctx, proj.ID, task.ID, "a", nil, 0, nil)
	require.NoError(t, err)
	_, err = e.CreateJob(ctx, proj.ID, task.ID, "b", nil, 0, nil)
	require.NoError(t, err)

	var out map[string]int
	resp := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/projects/%d/queue", ts.URL, proj.ID), nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, out["deleted"])

	jobs, err := e.ListJobs(ctx, proj.ID)
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	ts, _ := newTestAPI(t, server.Options{RateLimitPerMin: 2})

	var last *http.Response
	for i := 0; i < 3; i++ {
		last = doJSON(t, http.MethodGet, ts.URL+"/projects", nil, nil)
	}
	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
}
