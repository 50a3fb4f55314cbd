package client_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whatsnext/whatsnext/internal/client"
	"github.com/whatsnext/whatsnext/internal/engine"
	"github.com/whatsnext/whatsnext/internal/logging"
	"github.com/whatsnext/whatsnext/internal/server"
	"github.com/whatsnext/whatsnext/internal/store/memory"
	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

func newTestServer(t *testing.T, opts server.Options) (*client.Client, *engine.Engine) {
	t.Helper()
	e := engine.New(memory.New(), nil)
	srv := server.New(e, logging.NewCLI(), opts)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return client.New(client.Options{BaseURL: ts.URL, APIKey: opts.APIKey}), e
}

func TestClient_ProjectCRUDRoundTrip(t *testing.T) {
	c, _ := newTestServer(t, server.Options{})
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "demo", "a project")
	require.NoError(t, err)
	require.NotZero(t, p.ID)

	got, err := c.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)

	byName, err := c.GetProjectByName(ctx, "demo")
	require.NoError(t, err)
	require.Equal(t, p.ID, byName.ID)

	list, err := c.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteProject(ctx, p.ID))
	_, err = c.GetProject(ctx, p.ID)
	require.Error(t, err)
}

func TestClient_GetProjectNotFoundMapsToNotFoundKind(t *testing.T) {
	c, _ := newTestServer(t, server.Options{})
	_, err := c.GetProject(context.Background(), 9999)
	require.Error(t, err)
	require.Equal(t, werrors.KindNotFound, werrors.KindOf(err))
}

func TestClient_TaskAndJobLifecycle(t *testing.T) {
	c, _ := newTestServer(t, server.Options{})
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "demo", "")
	require.NoError(t, err)
	task, err := c.CreateTask(ctx, p.ID, "train", "train.sh {lr}", 1, 0)
	require.NoError(t, err)

	job, err := c.CreateJob(ctx, p.ID, task.ID, "exp-1", map[string]string{"lr": "0.1"}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, job.Status)

	jobs, err := c.ListJobs(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	fetched, err := c.FetchJob(ctx, p.ID, types.Capacity{CPU: 1})
	require.NoError(t, err)
	require.True(t, fetched.Dispatched())
	require.Equal(t, job.ID, fetched.Job.ID)

	require.NoError(t, c.TransitionJob(ctx, job.ID, types.StatusRunning))
	require.NoError(t, c.TransitionJob(ctx, job.ID, types.StatusCompleted))

	final, err := c.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, final.Status)
}

func TestClient_WorkerRegisterHeartbeatDeactivate(t *testing.T) {
	c, _ := newTestServer(t, server.Options{})
	ctx := context.Background()

	w, err := c.RegisterWorker(ctx, "w-1", "worker one", "lab-a", "", types.Capacity{CPU: 2})
	require.NoError(t, err)
	require.True(t, w.IsActive)

	list, err := c.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = c.Heartbeat(ctx, "w-1")
	require.NoError(t, err)

	deactivated, err := c.DeactivateWorker(ctx, "w-1")
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)
}

func TestClient_AuthMiddlewareRejectsMissingAPIKey(t *testing.T) {
	e := engine.New(memory.New(), nil)
	srv := server.New(e, logging.NewCLI(), server.Options{APIKey: "secret"})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	unauthenticated := client.New(client.Options{BaseURL: ts.URL})
	_, err := unauthenticated.ListProjects(context.Background())
	require.Error(t, err)

	authenticated := client.New(client.Options{BaseURL: ts.URL, APIKey: "secret"})
	_, err = authenticated.ListProjects(context.Background())
	require.NoError(t, err)
}
