package graph

import "github.com/hexlane/reconchain/pkg/schema"

// Resolver looks a tool slug up in the catalog. The second return is
// false for unknown slugs, which hydrate as named-only nodes.
type Resolver func(slug string) (schema.ToolMeta, bool)

// Snapshot serializes the graph to its storable representation, nodes
// and edges in insertion order, config maps copied.
func (g *Graph) Snapshot() schema.GraphSnapshot {
	snap := schema.GraphSnapshot{
		Nodes:   make([]schema.SnapshotNode, 0, len(g.nodeOrder)),
		Edges:   make([]schema.SnapshotEdge, 0, len(g.edgeOrder)),
		Globals: g.Globals(),
	}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		config := make(map[string]any, len(n.Config))
		for k, v := range n.Config {
			config[k] = v
		}
		snap.Nodes = append(snap.Nodes, schema.SnapshotNode{
			ID:       n.ID,
			ToolSlug: n.ToolSlug,
			Config:   config,
			X:        n.Position.X,
			Y:        n.Position.Y,
		})
	}
	for _, id := range g.edgeOrder {
		e := g.edges[id]
		snap.Edges = append(snap.Edges, schema.SnapshotEdge{From: e.From, To: e.To})
	}
	return snap
}

// Hydrate rebuilds an editable graph from a stored snapshot. Each node's
// slug is re-resolved against the catalog to recover display metadata and
// kind; unknown slugs degrade to named-only nodes. Edges are restored by
// ID pair without connect-time checks; none are dropped, even with a
// missing endpoint. The validator flags the inconsistency instead.
func Hydrate(snap schema.GraphSnapshot, resolve Resolver) *Graph {
	g := New()

	for _, sn := range snap.Nodes {
		meta, known := resolve(sn.ToolSlug)
		if !known {
			meta = schema.ToolMeta{Slug: sn.ToolSlug, Name: sn.ToolSlug}
		}
		config := make(map[string]any, len(sn.Config))
		for k, v := range sn.Config {
			config[k] = v
		}
		id := sn.ID
		if id == "" {
			id = newID("n")
		}
		g.addNodeWithID(id, meta, known, Position{X: sn.X, Y: sn.Y}, config)
	}

	for _, se := range snap.Edges {
		e := &Edge{ID: newID("e"), From: se.From, To: se.To}
		g.edges[e.ID] = e
		g.edgeOrder = append(g.edgeOrder, e.ID)
	}

	if snap.Globals != nil {
		g.SetGlobals(snap.Globals)
	}

	return g
}
