// Package client implements the HTTP-facing half of spec.md §6: a thin
// wrapper around the broker's REST API used by both the worker dispatch
// loop (internal/worker) and the operator CLI (cmd/wn). Connection
// lifecycle and retry-on-transport-failure are grounded on the teacher's
// DaemonConnection (examples/beads-web-ui/daemon/connection.go), adapted
// from a unix-socket RPC client to an HTTP one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/whatsnext/whatsnext/internal/types"
	"github.com/whatsnext/whatsnext/internal/werrors"
)

// Options configures Client construction.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
}

// Client is a small HTTP client over the broker's REST API. It is safe
// for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
}

// New builds a Client. Timeout defaults to 30s, MaxRetries to 3.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
	}
}

// do sends a JSON request and decodes a JSON response into out (if
// non-nil), retrying transport-level failures (connection refused,
// timeout) and 5xx responses with exponential backoff. 4xx responses the
// broker actually answered with are not retried.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return werrors.Validation("encoding request body: %v", err)
		}
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(werrors.Validation("building request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return werrors.Transport(err, "%s %s", method, path)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return werrors.Transport(err, "reading response body")
		}

		if resp.StatusCode >= 500 {
			return werrors.Transport(fmt.Errorf("status %d: %s", resp.StatusCode, data), "%s %s", method, path)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(statusError(resp.StatusCode, data))
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return backoff.Permanent(werrors.Wrap(werrors.KindUnknown, err, "decoding response body"))
			}
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func statusError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = string(data)
	}
	switch status {
	case http.StatusNotFound:
		return werrors.NotFound("%s", msg)
	case http.StatusConflict:
		return werrors.Conflict("%s", msg)
	case http.StatusBadRequest:
		return werrors.Validation("%s", msg)
	default:
		return werrors.Execution(fmt.Errorf("status %d", status), "%s", msg)
	}
}

// Healthy calls GET /checkdb.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/checkdb", nil, nil)
}

// --- Projects ---

func (c *Client) CreateProject(ctx context.Context, name, description string) (*types.Project, error) {
	var p types.Project
	err := c.do(ctx, http.MethodPost, "/projects", map[string]string{
		"name": name, "description": description,
	}, &p)
	return &p, err
}

func (c *Client) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p types.Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%d", id), nil, &p)
	return &p, err
}

func (c *Client) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	var p types.Project
	err := c.do(ctx, http.MethodGet, "/projects/name/"+name, nil, &p)
	return &p, err
}

func (c *Client) ListProjects(ctx context.Context) ([]*types.Project, error) {
	var list []*types.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &list)
	return list, err
}

func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/projects/%d", id), nil, nil)
}

// --- Tasks ---

func (c *Client) CreateTask(ctx context.Context, projectID int64, name, commandTemplate string, requiredCPU, requiredAccelerators int) (*types.Task, error) {
	var t types.Task
	err := c.do(ctx, http.MethodPost, "/tasks", map[string]any{
		"project_id":            projectID,
		"name":                  name,
		"command_template":      commandTemplate,
		"required_cpu":          requiredCPU,
		"required_accelerators": requiredAccelerators,
	}, &t)
	return &t, err
}

func (c *Client) ListTasks(ctx context.Context, projectID int64) ([]*types.Task, error) {
	var list []*types.Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks?project_id=%d", projectID), nil, &list)
	return list, err
}

// --- Jobs ---

func (c *Client) CreateJob(ctx context.Context, projectID, taskID int64, name string, parameters map[string]string, priority int, dependencies map[int64]string) (*types.Job, error) {
	var j types.Job
	err := c.do(ctx, http.MethodPost, "/jobs", map[string]any{
		"project_id":   projectID,
		"task_id":      taskID,
		"name":         name,
		"parameters":   parameters,
		"priority":     priority,
		"dependencies": dependencies,
	}, &j)
	return &j, err
}

func (c *Client) GetJob(ctx context.Context, id int64) (*types.Job, error) {
	var j types.Job
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%d", id), nil, &j)
	return &j, err
}

func (c *Client) ListJobs(ctx context.Context, projectID int64) ([]*types.Job, error) {
	var list []*types.Job
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs?project_id=%d", projectID), nil, &list)
	return list, err
}

func (c *Client) RetryJob(ctx context.Context, id int64) (*types.Job, error) {
	var j types.Job
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/jobs/%d/retry", id), nil, &j)
	return &j, err
}

func (c *Client) JobDependencies(ctx context.Context, id int64) (*types.DependencyReport, error) {
	var rep types.DependencyReport
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs/%d/dependencies", id), nil, &rep)
	return &rep, err
}

// FetchJob calls GET /projects/{id}/fetch_job?available_cpu=..&available_accelerators=..
func (c *Client) FetchJob(ctx context.Context, projectID int64, capacity types.Capacity) (types.FetchResult, error) {
	var res types.FetchResult
	path := fmt.Sprintf("/projects/%d/fetch_job?available_cpu=%d&available_accelerators=%d",
		projectID, capacity.CPU, capacity.Accelerators)
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res, err
}

// TransitionJob reports a job's new lifecycle state via PUT /jobs/{id}.
// The broker's update handler rejects the transition outright if it is
// illegal per spec.md §4.4, the same validation the engine applies.
func (c *Client) TransitionJob(ctx context.Context, id int64, status types.JobStatus) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/jobs/%d", id), map[string]string{
		"status": string(status),
	}, nil)
}

// --- Workers ---

func (c *Client) RegisterWorker(ctx context.Context, id, name, entity, description string, capacity types.Capacity) (*types.Worker, error) {
	var w types.Worker
	err := c.do(ctx, http.MethodPost, "/clients/register", map[string]any{
		"id": id, "name": name, "entity": entity, "description": description,
		"cpu": capacity.CPU, "accelerators": capacity.Accelerators,
	}, &w)
	return &w, err
}

func (c *Client) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	var list []*types.Worker
	err := c.do(ctx, http.MethodGet, "/clients/", nil, &list)
	return list, err
}

func (c *Client) Heartbeat(ctx context.Context, id string) (*types.Worker, error) {
	var w types.Worker
	err := c.do(ctx, http.MethodPost, "/clients/"+id+"/heartbeat", nil, &w)
	return &w, err
}

func (c *Client) DeactivateWorker(ctx context.Context, id string) (*types.Worker, error) {
	var w types.Worker
	err := c.do(ctx, http.MethodPost, "/clients/"+id+"/deactivate", nil, &w)
	return &w, err
}
