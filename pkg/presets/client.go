// Package presets is the client for the persisted workflow resource:
// CRUD, duplicate/rename conveniences, run submission, and the
// serialize/hydrate bridge between stored snapshots and the editable
// graph. The in-memory graph is a detached working copy; an explicit
// save is the only synchronization point.
package presets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/internal/logging"
	"github.com/hexlane/reconchain/pkg/schema"
)

const basePath = "/tools/api/workflows"

// CatalogResolver is the slice of the catalog adapter hydration needs.
type CatalogResolver interface {
	Resolve(slug string) (schema.ToolMeta, bool)
}

// Client performs preset operations against the workflow resource.
type Client struct {
	api    *api.Client
	logger *slog.Logger
}

// NewClient creates a preset Client. The logger is wrapped so records
// pick up workflow/run correlation IDs from the request context.
func NewClient(apiClient *api.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = slog.New(logging.NewCorrelationHandler(logger.Handler()))
	return &Client{api: apiClient, logger: logger}
}

// CreateRequest is the payload for Create.
type CreateRequest struct {
	Title    string               `json:"title"`
	Graph    schema.GraphSnapshot `json:"graph"`
	Schedule string               `json:"schedule,omitempty"`
}

// UpdateRequest is the partial payload for Update. Nil fields are left
// untouched server-side.
type UpdateRequest struct {
	Title    *string               `json:"title,omitempty"`
	Graph    *schema.GraphSnapshot `json:"graph,omitempty"`
	Schedule *string               `json:"schedule,omitempty"`
}

type workflowsPayload struct {
	Workflows []schema.Workflow `json:"workflows"`
}

type workflowPayload struct {
	Workflow schema.Workflow `json:"workflow"`
}

type runPayload struct {
	Run schema.Run `json:"run"`
}

// List fetches all saved presets.
func (c *Client) List(ctx context.Context) ([]schema.Workflow, error) {
	var payload workflowsPayload
	if err := c.api.Get(ctx, basePath, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Workflows, nil
}

// Get fetches one preset by ID.
func (c *Client) Get(ctx context.Context, id string) (*schema.Workflow, error) {
	var payload workflowPayload
	if err := c.api.Get(ctx, basePath+"/"+id, nil, &payload); err != nil {
		return nil, err
	}
	return &payload.Workflow, nil
}

// Create persists a new preset. An empty graph is rejected locally
// before any network call, as is an invalid cron schedule.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*schema.Workflow, error) {
	if err := guardSave(&req.Graph, req.Schedule); err != nil {
		return nil, err
	}

	var payload workflowPayload
	if err := c.api.Post(ctx, basePath, req, &payload); err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflowID(ctx, payload.Workflow.ID)
	c.logger.InfoContext(ctx, "preset created", "title", payload.Workflow.Title)
	return &payload.Workflow, nil
}

// Update modifies an existing preset. The empty-graph guard applies only
// when a graph is part of the update.
func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (*schema.Workflow, error) {
	schedule := ""
	if req.Schedule != nil {
		schedule = *req.Schedule
	}
	if err := guardSave(req.Graph, schedule); err != nil {
		return nil, err
	}

	var payload workflowPayload
	if err := c.api.Put(ctx, basePath+"/"+id, req, &payload); err != nil {
		return nil, err
	}
	return &payload.Workflow, nil
}

// Remove deletes a preset. When the server rejects the hard delete the
// client falls back to the archive soft-delete.
func (c *Client) Remove(ctx context.Context, id string) error {
	err := c.api.Delete(ctx, basePath+"/"+id)
	if err == nil {
		return nil
	}
	if !deleteRejected(err) {
		return err
	}

	ctx = logging.WithWorkflowID(ctx, id)
	c.logger.InfoContext(ctx, "hard delete rejected, archiving instead")
	return c.api.Post(ctx, basePath+"/"+id+"/archive", nil, nil)
}

// deleteRejected reports whether the failure was the server refusing the
// hard delete rather than the request not getting through. Refusals
// arrive enveloped (REMOTE_ERROR) or as a bare 4xx status such as 405 or
// 409; network failures and 5xx responses are not refusals and must not
// trigger the archive.
func deleteRejected(err error) bool {
	if schema.IsCode(err, schema.ErrCodeRemote) {
		return true
	}
	var re *schema.ReconError
	if errors.As(err, &re) && re.Code == schema.ErrCodeTransport && re.Details != nil {
		if status, ok := re.Details["status"].(int); ok {
			return status >= 400 && status < 500
		}
	}
	return false
}

// Duplicate fetches a preset and re-creates it under a derived title.
func (c *Client) Duplicate(ctx context.Context, id string) (*schema.Workflow, error) {
	original, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, CreateRequest{
		Title:    "Copy of " + original.Title,
		Graph:    original.Graph,
		Schedule: original.Schedule,
	})
}

// Rename changes only the preset's title.
func (c *Client) Rename(ctx context.Context, id, title string) (*schema.Workflow, error) {
	if strings.TrimSpace(title) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "preset title must not be blank")
	}
	return c.Update(ctx, id, UpdateRequest{Title: &title})
}

// StartRun asks the server to execute a persisted preset and returns the
// created run.
func (c *Client) StartRun(ctx context.Context, id string) (*schema.Run, error) {
	ctx = logging.WithWorkflowID(ctx, id)
	var payload runPayload
	if err := c.api.Post(ctx, basePath+"/"+id+"/run", nil, &payload); err != nil {
		return nil, err
	}
	c.logger.InfoContext(logging.WithRunID(ctx, payload.Run.ID), "run started")
	return &payload.Run, nil
}

// Serialize converts the editable graph to its storable representation.
func Serialize(g *graph.Graph) schema.GraphSnapshot {
	return g.Snapshot()
}

// Hydrate rebuilds an editable graph from a stored snapshot, re-resolving
// each slug against the catalog. Unknown slugs degrade to named-only
// nodes; edges are never dropped.
func Hydrate(snap schema.GraphSnapshot, resolver CatalogResolver) *graph.Graph {
	return graph.Hydrate(snap, resolver.Resolve)
}

// guardSave enforces the local pre-network checks shared by Create and
// Update: a non-empty graph (when one is being written) and a parseable
// cron schedule (when one is set).
func guardSave(snap *schema.GraphSnapshot, schedule string) error {
	if snap != nil && len(snap.Nodes) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "cannot save an empty workflow")
	}
	if schedule != "" {
		if err := ValidateSchedule(schedule); err != nil {
			return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("invalid schedule %q", schedule)).WithCause(err)
		}
	}
	return nil
}
