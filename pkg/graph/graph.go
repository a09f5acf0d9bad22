// Package graph owns the in-memory model of the workflow being edited:
// node and edge collections plus workflow-wide globals. Pure data and
// mutation operations, no I/O. The graph is exclusively owned by one
// editor session; no concurrent writer exists.
package graph

import (
	"strings"

	"github.com/google/uuid"

	"github.com/hexlane/reconchain/pkg/schema"
)

// Position is a node's canvas coordinate.
type Position struct {
	X float64
	Y float64
}

// Node is one tool placement in the workflow.
type Node struct {
	ID       string
	ToolSlug string
	Name     string
	Kind     schema.NodeKind
	Position Position
	Config   map[string]any
	IOPolicy schema.IOPolicy
	// HasMeta is false when the tool slug did not resolve in the catalog
	// at creation/hydration time; such nodes carry the slug as their
	// display name and are flagged by the validator, never rejected.
	HasMeta bool
}

// Edge connects two nodes. The workflow is a simple path: at most one
// outgoing and one incoming edge per node.
type Edge struct {
	ID   string
	From string
	To   string
}

// Graph is the mutable node/edge/globals collection.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	globals   map[string]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string]*Edge),
		globals: make(map[string]string),
	}
}

// AddNode creates a node from catalog metadata at the given position.
// known=false marks a node whose slug did not resolve; its kind degrades
// to process and its display name falls back to the slug.
func (g *Graph) AddNode(meta schema.ToolMeta, known bool, pos Position) *Node {
	return g.addNodeWithID(newID("n"), meta, known, pos, nil)
}

func (g *Graph) addNodeWithID(id string, meta schema.ToolMeta, known bool, pos Position, config map[string]any) *Node {
	name := meta.Name
	if name == "" {
		name = meta.Slug
	}
	if config == nil {
		config = make(map[string]any)
	}
	n := &Node{
		ID:       id,
		ToolSlug: meta.Slug,
		Name:     name,
		Kind:     meta.DeriveKind(),
		Position: pos,
		Config:   config,
		IOPolicy: meta.IOPolicy,
		HasMeta:  known,
	}
	g.nodes[id] = n
	g.nodeOrder = append(g.nodeOrder, id)
	return n
}

// MoveNode updates a node's position.
func (g *Graph) MoveNode(id string, pos Position) error {
	n, ok := g.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	n.Position = pos
	return nil
}

// RemoveNode deletes a node and cascades to every edge touching it.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	delete(g.nodes, id)
	g.nodeOrder = removeString(g.nodeOrder, id)

	for _, eid := range append([]string(nil), g.edgeOrder...) {
		e := g.edges[eid]
		if e.From == id || e.To == id {
			delete(g.edges, eid)
			g.edgeOrder = removeString(g.edgeOrder, eid)
		}
	}
	return nil
}

// SetNodeConfig replaces one config key on a node.
func (g *Graph) SetNodeConfig(id, key string, value any) error {
	n, ok := g.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", id)
	}
	if n.Config == nil {
		n.Config = make(map[string]any)
	}
	n.Config[key] = value
	return nil
}

// SetGlobals replaces the workflow-wide key/value parameters.
func (g *Graph) SetGlobals(globals map[string]string) {
	g.globals = make(map[string]string, len(globals))
	for k, v := range globals {
		g.globals[k] = v
	}
}

// Globals returns a copy of the workflow-wide parameters.
func (g *Graph) Globals() map[string]string {
	out := make(map[string]string, len(g.globals))
	for k, v := range g.globals {
		out[k] = v
	}
	return out
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, id := range g.nodeOrder {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, g.edges[id])
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// InDegree returns the number of incoming edges on a node.
func (g *Graph) InDegree(id string) int {
	count := 0
	for _, eid := range g.edgeOrder {
		if g.edges[eid].To == id {
			count++
		}
	}
	return count
}

// OutDegree returns the number of outgoing edges on a node.
func (g *Graph) OutDegree(id string) int {
	count := 0
	for _, eid := range g.edgeOrder {
		if g.edges[eid].From == id {
			count++
		}
	}
	return count
}

// Adjacency builds the forward adjacency view used by reachability and
// the validator's traversals.
func (g *Graph) Adjacency() AdjacencyView {
	adj := make(AdjacencyView, len(g.nodes))
	for _, id := range g.nodeOrder {
		adj[id] = nil
	}
	for _, eid := range g.edgeOrder {
		e := g.edges[eid]
		adj[e.From] = append(adj[e.From], e.To)
	}
	return adj
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// newID returns a short unique ID with a type prefix, e.g. "n-3f9c2a1b".
func newID(prefix string) string {
	return prefix + "-" + strings.Split(uuid.NewString(), "-")[0]
}
