// Package runs is the run-history client: list/filter queries, the
// pause/resume/cancel/retry controls, and the detail controller that
// scopes a live monitor to one open detail view. The clients hold no
// run state themselves; the server is the source of truth.
package runs

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/expressions"
	"github.com/hexlane/reconchain/internal/logging"
	"github.com/hexlane/reconchain/pkg/schema"
)

const basePath = "/tools/api/runs"

// Query filters a run listing. Zero fields are omitted.
type Query struct {
	Q          string
	Status     schema.RunStatus
	WorkflowID string
	Limit      int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Q != "" {
		v.Set("q", q.Q)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.WorkflowID != "" {
		v.Set("workflow_id", q.WorkflowID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

type runsPayload struct {
	Runs []schema.Run `json:"runs"`
}

type runPayload struct {
	Run schema.Run `json:"run"`
}

// Client performs operations against the run resource.
type Client struct {
	api      *api.Client
	logger   *slog.Logger
	tokens   api.TokenSource
	manifest *expressions.ManifestQuery
}

// NewClient creates a run Client. The logger is wrapped so records pick
// up run correlation IDs from the request context.
func NewClient(apiClient *api.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = slog.New(logging.NewCorrelationHandler(logger.Handler()))
	return &Client{api: apiClient, logger: logger, manifest: expressions.NewManifestQuery()}
}

// List fetches runs matching the query. Each call invalidates all
// earlier in-flight lists; a response that lost the race returns
// stale=true and must be discarded by the caller, not rendered.
func (c *Client) List(ctx context.Context, q Query) (runs []schema.Run, stale bool, err error) {
	token := c.tokens.Next()

	var payload runsPayload
	if err := c.api.Get(ctx, basePath, q.values(), &payload); err != nil {
		return nil, false, err
	}

	if !c.tokens.Latest(token) {
		c.logger.Debug("dropping stale run list response", "token", token)
		return nil, true, nil
	}
	return payload.Runs, false, nil
}

// Get fetches one run.
func (c *Client) Get(ctx context.Context, id string) (*schema.Run, error) {
	var payload runPayload
	if err := c.api.Get(ctx, basePath+"/"+id, nil, &payload); err != nil {
		return nil, err
	}
	return &payload.Run, nil
}

// Summary fetches the final run summary, including manifest buckets.
// Used after the monitor signals a terminal status and as the manual
// refresh path.
func (c *Client) Summary(ctx context.Context, id string) (*schema.Run, error) {
	var payload runPayload
	if err := c.api.Get(ctx, basePath+"/"+id+"/summary", nil, &payload); err != nil {
		return nil, err
	}
	return &payload.Run, nil
}

// QuerySummary fetches the run summary and filters its manifest with a
// jq program, e.g. `.buckets.domains[] | select(test("api"))` to pick
// API-looking hosts out of the discovered domains.
func (c *Client) QuerySummary(ctx context.Context, id, query string) (any, error) {
	run, err := c.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.manifest.Run(ctx, run, query)
}

// Pause suspends a running run.
func (c *Client) Pause(ctx context.Context, id string) (*schema.Run, error) {
	return c.control(ctx, id, "pause")
}

// Resume continues a paused run.
func (c *Client) Resume(ctx context.Context, id string) (*schema.Run, error) {
	return c.control(ctx, id, "resume")
}

// Cancel aborts a run server-side.
func (c *Client) Cancel(ctx context.Context, id string) (*schema.Run, error) {
	return c.control(ctx, id, "cancel")
}

// Retry re-executes a failed or canceled run. The result is a new run
// resource, never a resurrection of the old one.
func (c *Client) Retry(ctx context.Context, id string) (*schema.Run, error) {
	run, err := c.control(ctx, id, "retry")
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(logging.WithRunID(ctx, id), "run retried", "new_run_id", run.ID)
	return run, nil
}

func (c *Client) control(ctx context.Context, id, action string) (*schema.Run, error) {
	ctx = logging.WithRunID(ctx, id)
	var payload runPayload
	if err := c.api.Post(ctx, basePath+"/"+id+"/"+action, nil, &payload); err != nil {
		return nil, err
	}
	return &payload.Run, nil
}
