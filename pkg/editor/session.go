// Package editor is the session facade tying the graph model, catalog,
// validator, preset client, and state store together. Every mutation
// follows the same cycle: apply, revalidate, publish. A Session is
// exclusively owned by one editing surface and is not safe for
// concurrent use; the state store it publishes to is.
package editor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hexlane/reconchain/pkg/catalog"
	"github.com/hexlane/reconchain/pkg/drafts"
	"github.com/hexlane/reconchain/pkg/expressions"
	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/pkg/presets"
	"github.com/hexlane/reconchain/pkg/state"
	"github.com/hexlane/reconchain/pkg/validation"
	"github.com/hexlane/reconchain/pkg/schema"
)

// ConfirmFunc asks the user to confirm discarding unsaved changes.
// A nil ConfirmFunc means discards are always refused.
type ConfirmFunc func(message string) bool

// Config wires a Session's collaborators. Catalog, Presets, and States
// are required; the rest are optional features.
type Config struct {
	Catalog   *catalog.Adapter
	Presets   *presets.Client
	States    *state.Store
	Validator *validation.ChainValidator
	Snapshots *validation.SnapshotValidator
	Drafts    *drafts.Store
	Interp    *expressions.Interpolator
	Confirm   ConfirmFunc
	Logger    *slog.Logger
}

// Session is one editing session over one in-memory graph.
type Session struct {
	catalog   *catalog.Adapter
	presets   *presets.Client
	states    *state.Store
	validator *validation.ChainValidator
	snapshots *validation.SnapshotValidator
	drafts    *drafts.Store
	interp    *expressions.Interpolator
	confirm   ConfirmFunc
	logger    *slog.Logger

	graph      *graph.Graph
	workflowID string
	title      string
	schedule   string
	dirty      bool
	revision   int
	result     *schema.ValidationResult
}

// NewSession creates an empty editing session and publishes its initial
// validation state.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Catalog == nil || cfg.Presets == nil || cfg.States == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "session requires catalog, presets, and states")
	}
	validator := cfg.Validator
	if validator == nil {
		validator = validation.NewChainValidator(cfg.Catalog, validation.DefaultPolicy())
	}
	snapshots := cfg.Snapshots
	if snapshots == nil {
		var err error
		snapshots, err = validation.NewSnapshotValidator()
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		catalog:   cfg.Catalog,
		presets:   cfg.Presets,
		states:    cfg.States,
		validator: validator,
		snapshots: snapshots,
		drafts:    cfg.Drafts,
		interp:    cfg.Interp,
		confirm:   cfg.Confirm,
		logger:    logger,
		graph:     graph.New(),
	}
	s.revalidate()
	s.publishValidation()
	s.states.Set(state.KeyDirty, false)
	return s, nil
}

// Graph exposes the live graph for read access.
func (s *Session) Graph() *graph.Graph { return s.graph }

// Warnings returns the result of the last validation pass.
func (s *Session) Warnings() *schema.ValidationResult { return s.result }

// Dirty reports whether unsaved changes exist.
func (s *Session) Dirty() bool { return s.dirty }

// WorkflowID returns the persisted preset ID, empty if never saved.
func (s *Session) WorkflowID() string { return s.workflowID }

// Title returns the working title.
func (s *Session) Title() string { return s.title }

// --- Mutations ---

// AddNode places a tool on the canvas. Unknown slugs degrade to
// named-only nodes rather than failing.
func (s *Session) AddNode(slug string, pos graph.Position) *graph.Node {
	meta, known := s.catalog.Resolve(slug)
	if !known {
		meta = schema.ToolMeta{Slug: slug, Name: slug}
		s.logger.Warn("placing node with unknown tool", "tool_slug", slug)
	}
	n := s.graph.AddNode(meta, known, pos)
	s.afterMutation()
	return n
}

// MoveNode repositions a node.
func (s *Session) MoveNode(id string, pos graph.Position) error {
	if err := s.graph.MoveNode(id, pos); err != nil {
		return err
	}
	s.afterMutation()
	return nil
}

// RemoveNode deletes a node and its edges.
func (s *Session) RemoveNode(id string) error {
	if err := s.graph.RemoveNode(id); err != nil {
		return err
	}
	s.afterMutation()
	return nil
}

// Connect adds an edge. Rejections surface as EDGE_REJECTED errors
// carrying the named reason.
func (s *Session) Connect(fromID, toID string) (*graph.Edge, error) {
	edge, rej := s.graph.Connect(fromID, toID)
	if rej != nil {
		return nil, schema.NewError(schema.ErrCodeEdgeRejected, rej.Message).
			WithDetails(map[string]any{"reason": string(rej.Reason)})
	}
	s.afterMutation()
	return edge, nil
}

// Disconnect removes an edge.
func (s *Session) Disconnect(edgeID string) error {
	if err := s.graph.Disconnect(edgeID); err != nil {
		return err
	}
	s.afterMutation()
	return nil
}

// SetNodeConfig sets one config key on a node.
func (s *Session) SetNodeConfig(nodeID, key string, value any) error {
	if err := s.graph.SetNodeConfig(nodeID, key, value); err != nil {
		return err
	}
	s.afterMutation()
	return nil
}

// SetGlobals replaces the workflow-wide parameters.
func (s *Session) SetGlobals(globals map[string]string) {
	s.graph.SetGlobals(globals)
	s.afterMutation()
}

// SetTitle changes the working title.
func (s *Session) SetTitle(title string) {
	s.title = title
	s.afterMutation()
}

// SetSchedule sets the preset's cron schedule, validated locally.
func (s *Session) SetSchedule(expr string) error {
	if expr != "" {
		if err := presets.ValidateSchedule(expr); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "invalid schedule %q", expr).WithCause(err)
		}
	}
	s.schedule = expr
	s.afterMutation()
	return nil
}

// --- Resource operations ---

// Save persists the working copy, creating the preset on first save.
// An empty graph is rejected locally without any network call. On
// failure the dirty flag is preserved so nothing is silently lost.
func (s *Session) Save(ctx context.Context) error {
	if s.graph.NodeCount() == 0 {
		return schema.NewError(schema.ErrCodeValidation, "cannot save an empty workflow")
	}

	s.setBusy(true)
	defer s.setBusy(false)

	title := s.title
	if title == "" {
		title = "Untitled workflow"
	}
	snap := s.graph.Snapshot()

	var (
		wf  *schema.Workflow
		err error
	)
	if s.workflowID == "" {
		wf, err = s.presets.Create(ctx, presets.CreateRequest{Title: title, Graph: snap, Schedule: s.schedule})
	} else {
		wf, err = s.presets.Update(ctx, s.workflowID, presets.UpdateRequest{
			Title: &title, Graph: &snap, Schedule: &s.schedule,
		})
	}
	if err != nil {
		s.notify(err, "saving the workflow failed")
		return err
	}

	previousID := s.workflowID
	s.workflowID = wf.ID
	s.title = wf.Title
	s.dirty = false
	s.states.Set(state.KeyDirty, false)

	if s.drafts != nil {
		_ = s.drafts.DeleteDraft(ctx, previousID)
		_ = s.drafts.DeleteDraft(ctx, wf.ID)
	}
	return nil
}

// LoadPreset replaces the working copy with a stored preset. A dirty
// session requires confirmation; without a ConfirmFunc the load is
// refused outright.
func (s *Session) LoadPreset(ctx context.Context, id string) error {
	if !s.confirmDiscard() {
		return schema.NewError(schema.ErrCodeConflict, "unsaved changes: load not confirmed")
	}

	s.setBusy(true)
	defer s.setBusy(false)

	wf, err := s.presets.Get(ctx, id)
	if err != nil {
		s.notify(err, "loading the workflow failed")
		return err
	}
	if err := s.snapshots.ValidateSnapshot(&wf.Graph); err != nil {
		s.notify(err, "the stored workflow is malformed")
		return err
	}

	s.graph = presets.Hydrate(wf.Graph, s.catalog)
	s.workflowID = wf.ID
	s.title = wf.Title
	s.schedule = wf.Schedule
	s.dirty = false
	s.revision++

	s.revalidate()
	s.publishValidation()
	s.states.Set(state.KeyDirty, false)
	s.logger.Info("preset loaded", "workflow_id", wf.ID, "nodes", s.graph.NodeCount())
	return nil
}

// Reset discards the working copy and starts an empty workflow. Subject
// to the same dirty confirmation as LoadPreset.
func (s *Session) Reset() error {
	if !s.confirmDiscard() {
		return schema.NewError(schema.ErrCodeConflict, "unsaved changes: reset not confirmed")
	}
	s.graph = graph.New()
	s.workflowID = ""
	s.title = ""
	s.schedule = ""
	s.dirty = false
	s.revision++
	s.revalidate()
	s.publishValidation()
	s.states.Set(state.KeyDirty, false)
	return nil
}

// SubmitRun starts server-side execution of the persisted preset. It
// refuses while hard warnings exist or the preset was never saved.
func (s *Session) SubmitRun(ctx context.Context) (*schema.Run, error) {
	if err := s.result.ToError(); err != nil {
		return nil, err
	}
	if s.workflowID == "" {
		return nil, schema.NewError(schema.ErrCodeConflict, "save the workflow before running it")
	}

	s.setBusy(true)
	defer s.setBusy(false)

	run, err := s.presets.StartRun(ctx, s.workflowID)
	if err != nil {
		s.notify(err, "starting the run failed")
		return nil, err
	}
	s.states.Set(state.KeyRunStatus, run.Status)
	return run, nil
}

// --- Drafts & interpolation ---

// AutosaveDraft writes the working copy to the local draft store. The
// caller debounces; a clean session is a no-op. Never issues HTTP.
func (s *Session) AutosaveDraft(ctx context.Context) error {
	if s.drafts == nil || !s.dirty {
		return nil
	}
	return s.drafts.SaveDraft(ctx, s.workflowID, s.title, s.graph.Snapshot())
}

// RestoreDraft loads the local draft for the current workflow slot. The
// restored work is unsaved by definition, so the session becomes dirty.
func (s *Session) RestoreDraft(ctx context.Context) error {
	if s.drafts == nil {
		return schema.NewError(schema.ErrCodeNotFound, "no draft store configured")
	}
	d, err := s.drafts.LatestDraft(ctx, s.workflowID)
	if err != nil {
		return err
	}
	s.graph = presets.Hydrate(d.Snapshot, s.catalog)
	if d.Title != "" {
		s.title = d.Title
	}
	s.afterMutation()
	return nil
}

// EffectiveConfig resolves a node's config through the interpolator:
// ${{globals.*}} and ${{workflow.*}} tokens plus engine-prefixed
// expressions, evaluated against the current globals.
func (s *Session) EffectiveConfig(ctx context.Context, nodeID string) (map[string]any, error) {
	n, ok := s.graph.Node(nodeID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID)
	}
	if s.interp == nil {
		out := make(map[string]any, len(n.Config))
		for k, v := range n.Config {
			out[k] = v
		}
		return out, nil
	}
	scope := &expressions.Scope{
		Globals:  s.graph.Globals(),
		Workflow: map[string]any{"id": s.workflowID, "title": s.title},
	}
	return s.interp.ResolveConfig(ctx, n.Config, scope)
}

// --- Internals ---

func (s *Session) afterMutation() {
	s.dirty = true
	s.revision++
	s.revalidate()
	s.publishValidation()
	s.states.Set(state.KeyDirty, true)
}

func (s *Session) revalidate() {
	s.result = s.validator.Validate(s.graph)
}

func (s *Session) publishValidation() {
	s.states.Set(state.KeyWarnings, s.result.Messages())
	s.states.Set(state.KeyGraphRevision, s.revision)
}

func (s *Session) confirmDiscard() bool {
	if !s.dirty {
		return true
	}
	if s.confirm == nil {
		return false
	}
	return s.confirm("Discard unsaved changes?")
}

func (s *Session) setBusy(b bool) {
	s.states.Set(state.KeyBusy, b)
}

// notify publishes a blocking notice, preferring the server-provided
// message when one exists.
func (s *Session) notify(err error, fallback string) {
	msg := fallback
	var rerr *schema.ReconError
	if errors.As(err, &rerr) && rerr.Message != "" {
		msg = rerr.Message
	}
	s.states.Set(state.KeyNotice, msg)
	s.logger.Error("resource operation failed", "error", err)
}
