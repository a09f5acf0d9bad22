package validation

import (
	"fmt"
	"strings"

	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/pkg/schema"
)

// validateChain enforces the single-linear-chain shape: exactly one
// start (in-degree 0), exactly one end (out-degree 0), every other node
// 1-in/1-out, and full reachability from the start (island detection).
func validateChain(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodeSet := make(map[string]*graph.Node)
	for _, n := range g.Nodes() {
		nodeSet[n.ID] = n
	}

	// Degrees computed over edges with both endpoints present; edges
	// with a missing endpoint survive hydration by contract and are
	// reported here instead of silently dropped.
	inDeg := make(map[string]int, len(nodeSet))
	outDeg := make(map[string]int, len(nodeSet))
	adj := make(graph.AdjacencyView, len(nodeSet))
	for id := range nodeSet {
		adj[id] = nil
	}
	for _, e := range g.Edges() {
		_, fromOK := nodeSet[e.From]
		_, toOK := nodeSet[e.To]
		if !fromOK || !toOK {
			result.AddAdvisory(fmt.Sprintf("edges[%s->%s]", e.From, e.To),
				schema.WarnDanglingEdge,
				fmt.Sprintf("connection %s -> %s references a missing node", e.From, e.To))
			continue
		}
		outDeg[e.From]++
		inDeg[e.To]++
		adj[e.From] = append(adj[e.From], e.To)
	}

	var starts, ends []*graph.Node
	for _, n := range g.Nodes() {
		if inDeg[n.ID] == 0 {
			starts = append(starts, n)
		}
		if outDeg[n.ID] == 0 {
			ends = append(ends, n)
		}
		if inDeg[n.ID] > 1 || outDeg[n.ID] > 1 {
			result.AddAdvisory(fmt.Sprintf("nodes[%s]", n.ID),
				schema.WarnBrokenChain,
				fmt.Sprintf("%s has %d incoming and %d outgoing connections; the workflow must be a single chain",
					n.Name, inDeg[n.ID], outDeg[n.ID]))
		}
	}

	if len(starts) != 1 {
		result.AddHard("/", schema.WarnNoSingleStart,
			fmt.Sprintf("workflow needs exactly one start node (found %d)", len(starts)))
	}
	if len(ends) != 1 {
		result.AddHard("/", schema.WarnNoSingleEnd,
			fmt.Sprintf("workflow needs exactly one end node (found %d)", len(ends)))
	}

	// Island detection: BFS from the start node. With an ambiguous
	// start the first candidate in insertion order anchors the scan so
	// disjoint chains still produce exactly one island warning.
	origin := ""
	if len(starts) > 0 {
		origin = starts[0].ID
	} else if len(g.Nodes()) > 0 {
		origin = g.Nodes()[0].ID
	}
	if origin != "" {
		reached := graph.ReachableFrom(adj, origin)
		var unreached []string
		for _, n := range g.Nodes() {
			if !reached[n.ID] {
				unreached = append(unreached, n.Name)
			}
		}
		if len(unreached) > 0 {
			result.AddHard("/", schema.WarnIsland,
				fmt.Sprintf("workflow is not a single chain: %s cannot be reached from the start",
					strings.Join(unreached, ", ")))
		}
	}

	return result
}
