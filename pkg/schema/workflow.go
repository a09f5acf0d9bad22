package schema

import "time"

// ToolMeta is a catalog entry describing one reconnaissance tool.
// Served by GET /tools/api/tools, grouped by category.
type ToolMeta struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Category string   `json:"category,omitempty"`
	Type     string   `json:"type,omitempty"`  // discovery, enumeration, analysis, ...
	Stage    int      `json:"stage,omitempty"` // position in the stage map, 0 = unknown
	IOPolicy IOPolicy `json:"io_policy"`
}

// IOPolicy declares which data buckets a tool consumes and emits.
// Empty sets mean the tool made no declaration, not that it accepts nothing.
type IOPolicy struct {
	Consumes []string `json:"consumes,omitempty"`
	Emits    []string `json:"emits,omitempty"`
}

// DeriveKind classifies the tool from its capability declarations: tools
// that only emit are starts, tools that only consume are ends, everything
// else (including tools with no declarations) is a process node.
func (m ToolMeta) DeriveKind() NodeKind {
	emits := len(m.IOPolicy.Emits) > 0
	consumes := len(m.IOPolicy.Consumes) > 0
	switch {
	case emits && !consumes:
		return NodeKindStart
	case consumes && !emits:
		return NodeKindEnd
	default:
		return NodeKindProcess
	}
}

// NodeKind classifies a node's position role, derived from catalog
// metadata at creation/hydration time and never edited directly.
type NodeKind string

const (
	NodeKindStart   NodeKind = "start"
	NodeKindProcess NodeKind = "process"
	NodeKindEnd     NodeKind = "end"
)

// SnapshotNode is the stored representation of a graph node.
type SnapshotNode struct {
	ID       string         `json:"id"`
	ToolSlug string         `json:"tool_slug"`
	Config   map[string]any `json:"config,omitempty"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
}

// SnapshotEdge is the stored representation of a graph edge.
type SnapshotEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphSnapshot is the serializable form of a workflow graph.
// It is what gets persisted inside a Workflow and hydrated back into
// an editable graph.
type GraphSnapshot struct {
	Nodes   []SnapshotNode    `json:"nodes"`
	Edges   []SnapshotEdge    `json:"edges"`
	Globals map[string]string `json:"globals,omitempty"`
}

// Workflow is the persisted preset resource.
type Workflow struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Graph     GraphSnapshot `json:"graph"`
	Schedule  string        `json:"schedule,omitempty"` // optional cron expression
	UpdatedAt time.Time     `json:"updated_at"`
	StepCount int           `json:"step_count"`
}

// Run is one execution instance of a persisted workflow.
// Read-only from the client's perspective; mutated only server-side.
type Run struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      RunStatus      `json:"status"`
	ProgressPct float64        `json:"progress_pct"`
	Steps       []RunStep      `json:"steps,omitempty"`
	Counters    map[string]int `json:"counters,omitempty"`
	Manifest    *RunManifest   `json:"manifest,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// RunStep is the per-tool execution record inside a Run.
type RunStep struct {
	Index       int            `json:"index"`
	ToolSlug    string         `json:"tool_slug"`
	Status      StepStatus     `json:"status"`
	ExecutionMS int64          `json:"execution_ms,omitempty"`
	Counters    map[string]int `json:"counters,omitempty"`
}

// RunManifest holds the named output collections a run produced.
type RunManifest struct {
	Buckets map[string][]any `json:"buckets,omitempty"`
}
