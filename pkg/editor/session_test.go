package editor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/catalog"
	"github.com/hexlane/reconchain/pkg/drafts"
	"github.com/hexlane/reconchain/pkg/expressions"
	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/pkg/presets"
	"github.com/hexlane/reconchain/pkg/state"
	"github.com/hexlane/reconchain/pkg/schema"
)

// backend is a scripted preset/catalog server for session tests.
type backend struct {
	mu        sync.Mutex
	saved     *schema.Workflow
	requests  []string // "METHOD path"
	rejectMsg string   // when set, workflow writes fail with this message
}

func (b *backend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		reject := b.rejectMsg
		b.mu.Unlock()

		writeOK := func(data any) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": data})
		}

		switch {
		case r.URL.Path == "/tools/api/tools":
			writeOK(map[string]any{
				"categories": map[string][]schema.ToolMeta{
					"discovery": {{
						Slug: "subfinder", Name: "Subfinder",
						IOPolicy: schema.IOPolicy{Emits: []string{"domains"}},
					}},
					"enumeration": {{
						Slug: "httpx", Name: "HTTPX",
						IOPolicy: schema.IOPolicy{Consumes: []string{"domains"}, Emits: []string{"hosts"}},
					}},
					"analysis": {{
						Slug: "nuclei", Name: "Nuclei",
						IOPolicy: schema.IOPolicy{Consumes: []string{"hosts"}},
					}},
				},
				"stages": map[string]int{"discovery": 1, "enumeration": 2, "analysis": 3},
			})
		case r.URL.Path == "/tools/api/workflows" && r.Method == http.MethodPost:
			if reject != "" {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": map[string]any{"message": reject}})
				return
			}
			var req presets.CreateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			wf := schema.Workflow{ID: "wf-1", Title: req.Title, Graph: req.Graph, Schedule: req.Schedule}
			b.mu.Lock()
			b.saved = &wf
			b.mu.Unlock()
			writeOK(map[string]any{"workflow": wf})
		case r.URL.Path == "/tools/api/workflows/wf-1" && r.Method == http.MethodPut:
			if reject != "" {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": map[string]any{"message": reject}})
				return
			}
			var req presets.UpdateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			b.mu.Lock()
			wf := *b.saved
			if req.Title != nil {
				wf.Title = *req.Title
			}
			if req.Graph != nil {
				wf.Graph = *req.Graph
			}
			b.saved = &wf
			b.mu.Unlock()
			writeOK(map[string]any{"workflow": wf})
		case r.URL.Path == "/tools/api/workflows/wf-1" && r.Method == http.MethodGet:
			b.mu.Lock()
			wf := b.saved
			b.mu.Unlock()
			writeOK(map[string]any{"workflow": wf})
		case r.URL.Path == "/tools/api/workflows/wf-1/run":
			writeOK(map[string]any{"run": schema.Run{ID: "run-1", WorkflowID: "wf-1", Status: schema.RunStatusQueued}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (b *backend) requestCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

type sessionFixture struct {
	session *Session
	states  *state.Store
	backend *backend
}

func newFixture(t *testing.T, mutate func(cfg *Config)) *sessionFixture {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)

	client := api.NewClient(api.Config{BaseURL: srv.URL})
	adapter := catalog.NewAdapter(client, nil)
	require.NoError(t, adapter.Load(context.Background()))

	states := state.NewStore()
	cfg := Config{
		Catalog: adapter,
		Presets: presets.NewClient(client, nil),
		States:  states,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return &sessionFixture{session: s, states: states, backend: b}
}

func buildChain(t *testing.T, s *Session) (*graph.Node, *graph.Node, *graph.Node) {
	t.Helper()
	a := s.AddNode("subfinder", graph.Position{X: 0})
	b := s.AddNode("httpx", graph.Position{X: 100})
	c := s.AddNode("nuclei", graph.Position{X: 200})
	_, err := s.Connect(a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.Connect(b.ID, c.ID)
	require.NoError(t, err)
	return a, b, c
}

// --- Mutation cycle ---

func TestMutationPublishesStateKeys(t *testing.T) {
	f := newFixture(t, nil)

	f.session.AddNode("subfinder", graph.Position{})

	assert.True(t, f.session.Dirty())
	assert.True(t, f.states.GetBool(state.KeyDirty))

	warnings, ok := f.states.Get(state.KeyWarnings)
	require.True(t, ok)
	assert.NotNil(t, warnings)

	rev, ok := f.states.Get(state.KeyGraphRevision)
	require.True(t, ok)
	assert.Equal(t, 1, rev)
}

func TestLinearChainHasNoHardWarnings(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)

	assert.True(t, f.session.Warnings().RunnableOK(),
		"chain warnings: %v", f.session.Warnings().Messages())
}

func TestConnectRejectionIsTypedError(t *testing.T) {
	f := newFixture(t, nil)
	a := f.session.AddNode("subfinder", graph.Position{})

	_, err := f.session.Connect(a.ID, a.ID)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeEdgeRejected))
	assert.Empty(t, f.session.Graph().Edges())
}

func TestAddNode_UnknownSlugDegrades(t *testing.T) {
	f := newFixture(t, nil)

	n := f.session.AddNode("mystery-scanner", graph.Position{})

	assert.Equal(t, "mystery-scanner", n.Name)
	assert.False(t, n.HasMeta)
	// Advisory, not a hard failure.
	assert.True(t, f.session.Warnings().RunnableOK())
}

// --- Save ---

func TestSave_CreateThenUpdate(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	f.session.SetTitle("perimeter sweep")

	require.NoError(t, f.session.Save(context.Background()))
	assert.Equal(t, "wf-1", f.session.WorkflowID())
	assert.False(t, f.session.Dirty())
	assert.False(t, f.states.GetBool(state.KeyDirty))

	f.session.SetGlobals(map[string]string{"scope": "external"})
	assert.True(t, f.session.Dirty())

	require.NoError(t, f.session.Save(context.Background()))
	assert.False(t, f.session.Dirty())

	var sawPut bool
	for _, req := range f.backend.requests {
		if req == "PUT /tools/api/workflows/wf-1" {
			sawPut = true
		}
	}
	assert.True(t, sawPut, "second save must update, not re-create")
}

func TestSave_EmptyGraphRejectedWithoutNetwork(t *testing.T) {
	f := newFixture(t, nil)
	before := f.backend.requestCount()

	err := f.session.Save(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Equal(t, before, f.backend.requestCount())
}

func TestSave_FailureRestoresDirtyAndNotifies(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	f.backend.rejectMsg = "quota exceeded"

	err := f.session.Save(context.Background())
	require.Error(t, err)

	assert.True(t, f.session.Dirty(), "failed save must not clear the dirty flag")
	assert.False(t, f.states.GetBool(state.KeyBusy))
	notice, _ := f.states.Get(state.KeyNotice)
	assert.Equal(t, "quota exceeded", notice)
}

// --- Load ---

func TestLoadPreset_DirtySessionRequiresConfirmation(t *testing.T) {
	confirmed := false
	f := newFixture(t, func(cfg *Config) {
		cfg.Confirm = func(string) bool { return confirmed }
	})
	buildChain(t, f.session)
	require.NoError(t, f.session.Save(context.Background()))

	f.session.SetGlobals(map[string]string{"scope": "internal"}) // dirty again

	err := f.session.LoadPreset(context.Background(), "wf-1")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	confirmed = true
	require.NoError(t, f.session.LoadPreset(context.Background(), "wf-1"))
	assert.False(t, f.session.Dirty())
	assert.Equal(t, 3, f.session.Graph().NodeCount())
}

func TestLoadPreset_NilConfirmRefusesDiscard(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	require.NoError(t, f.session.Save(context.Background()))
	f.session.SetTitle("edited")

	err := f.session.LoadPreset(context.Background(), "wf-1")
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestLoadPreset_HydratesWithDegradedNodes(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	require.NoError(t, f.session.Save(context.Background()))

	// A tool the catalog no longer knows still hydrates by slug.
	f.backend.mu.Lock()
	f.backend.saved.Graph.Nodes = append(f.backend.saved.Graph.Nodes,
		schema.SnapshotNode{ID: "n-x", ToolSlug: "retired-tool"})
	f.backend.mu.Unlock()

	require.NoError(t, f.session.LoadPreset(context.Background(), "wf-1"))
	n, ok := f.session.Graph().Node("n-x")
	require.True(t, ok)
	assert.Equal(t, "retired-tool", n.Name)
	assert.False(t, n.HasMeta)
}

func TestLoadPreset_MalformedSnapshotRejected(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	require.NoError(t, f.session.Save(context.Background()))

	f.backend.mu.Lock()
	f.backend.saved.Graph.Nodes[0].ToolSlug = "" // violates the snapshot schema
	f.backend.mu.Unlock()

	err := f.session.LoadPreset(context.Background(), "wf-1")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	// The working copy survives a failed load.
	assert.Equal(t, 3, f.session.Graph().NodeCount())
}

// --- Run submission ---

func TestSubmitRun_RefusedWithHardWarnings(t *testing.T) {
	f := newFixture(t, nil)
	f.session.AddNode("subfinder", graph.Position{})
	f.session.AddNode("nuclei", graph.Position{}) // disconnected: island

	_, err := f.session.SubmitRun(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestSubmitRun_RefusedBeforeFirstSave(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)

	_, err := f.session.SubmitRun(context.Background())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestSubmitRun_StartsRunAfterSave(t *testing.T) {
	f := newFixture(t, nil)
	buildChain(t, f.session)
	require.NoError(t, f.session.Save(context.Background()))

	run, err := f.session.SubmitRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)

	status, _ := f.states.Get(state.KeyRunStatus)
	assert.Equal(t, schema.RunStatusQueued, status)
}

// --- Drafts & interpolation ---

func TestDraftAutosaveAndRestore(t *testing.T) {
	store, err := drafts.NewStore("file:" + filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, func(cfg *Config) {
		cfg.Drafts = store
		cfg.Confirm = func(string) bool { return true }
	})

	// Clean session: autosave is a no-op.
	require.NoError(t, f.session.AutosaveDraft(context.Background()))
	_, err = store.LatestDraft(context.Background(), "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	buildChain(t, f.session)
	f.session.SetTitle("work in progress")
	require.NoError(t, f.session.AutosaveDraft(context.Background()))

	require.NoError(t, f.session.Reset())
	assert.Equal(t, 0, f.session.Graph().NodeCount())

	require.NoError(t, f.session.RestoreDraft(context.Background()))
	assert.Equal(t, 3, f.session.Graph().NodeCount())
	assert.Equal(t, "work in progress", f.session.Title())
	assert.True(t, f.session.Dirty())
}

func TestSave_ClearsDraft(t *testing.T) {
	store, err := drafts.NewStore("file:" + filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, func(cfg *Config) { cfg.Drafts = store })
	buildChain(t, f.session)
	require.NoError(t, f.session.AutosaveDraft(context.Background()))

	require.NoError(t, f.session.Save(context.Background()))

	_, err = store.LatestDraft(context.Background(), "")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound), "anonymous draft cleared after save")
}

func TestEffectiveConfig(t *testing.T) {
	interp, err := expressions.NewInterpolator()
	require.NoError(t, err)

	f := newFixture(t, func(cfg *Config) { cfg.Interp = interp })
	n := f.session.AddNode("subfinder", graph.Position{})
	require.NoError(t, f.session.SetNodeConfig(n.ID, "domain", "${{globals.target}}"))
	require.NoError(t, f.session.SetNodeConfig(n.ID, "threads", 8))
	f.session.SetGlobals(map[string]string{"target": "example.com"})

	config, err := f.session.EffectiveConfig(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", config["domain"])
	assert.Equal(t, 8, config["threads"])
}

func TestEffectiveConfig_UndefinedGlobal(t *testing.T) {
	interp, err := expressions.NewInterpolator()
	require.NoError(t, err)

	f := newFixture(t, func(cfg *Config) { cfg.Interp = interp })
	n := f.session.AddNode("subfinder", graph.Position{})
	require.NoError(t, f.session.SetNodeConfig(n.ID, "domain", "${{globals.missing}}"))

	_, err = f.session.EffectiveConfig(context.Background(), n.ID)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInterpolation))
}
