package validation

import (
	"fmt"

	"github.com/hexlane/reconchain/pkg/expressions"
	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/pkg/schema"
)

// validateSemantic checks the catalog-backed properties of the graph:
// per-edge bucket compatibility, stage ordering, missing capability
// metadata, and references to undefined workflow globals.
func validateSemantic(g *graph.Graph, stages StageLookup, policy Policy) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, n := range g.Nodes() {
		if !n.HasMeta {
			result.AddAdvisory(fmt.Sprintf("nodes[%s]", n.ID),
				schema.WarnMissingMetadata,
				fmt.Sprintf("tool %q has no catalog metadata; its connections cannot be verified", n.ToolSlug))
		}
	}

	for _, e := range g.Edges() {
		from, fromOK := g.Node(e.From)
		to, toOK := g.Node(e.To)
		if !fromOK || !toOK {
			continue // dangling edges reported by the chain stage
		}
		checkBuckets(result, from, to, policy)
		checkStageOrder(result, from, to, stages, policy)
	}

	checkGlobalRefs(result, g)

	return result
}

// checkBuckets verifies that the source emits at least one bucket the
// destination consumes. Only enforced when both sides declare non-empty
// sets; under the strict policy an unverifiable edge also blocks.
func checkBuckets(result *schema.ValidationResult, from, to *graph.Node, policy Policy) {
	path := fmt.Sprintf("edges[%s->%s]", from.ID, to.ID)

	declared := from.HasMeta && to.HasMeta &&
		len(from.IOPolicy.Emits) > 0 && len(to.IOPolicy.Consumes) > 0
	if !declared {
		if policy.Mode == Strict {
			result.AddHard(path, schema.WarnBucketMismatch,
				fmt.Sprintf("cannot verify buckets for %s -> %s: capability metadata incomplete", from.Name, to.Name))
		}
		return
	}

	set := make(map[string]bool, len(from.IOPolicy.Emits))
	for _, b := range from.IOPolicy.Emits {
		set[b] = true
	}
	for _, b := range to.IOPolicy.Consumes {
		if set[b] {
			return
		}
	}

	result.AddHard(path, schema.WarnBucketMismatch,
		fmt.Sprintf("%s emits %v but %s consumes %v: no compatible buckets",
			from.Name, from.IOPolicy.Emits, to.Name, to.IOPolicy.Consumes))
}

// checkStageOrder flags edges whose source stage number exceeds the
// destination's, e.g. a discovery tool placed after an analysis tool.
func checkStageOrder(result *schema.ValidationResult, from, to *graph.Node, stages StageLookup, policy Policy) {
	if stages == nil {
		return
	}
	path := fmt.Sprintf("edges[%s->%s]", from.ID, to.ID)

	srcStage := stages.StageOf(from.ToolSlug)
	dstStage := stages.StageOf(to.ToolSlug)
	if srcStage == 0 || dstStage == 0 {
		if policy.Mode == Strict {
			result.AddHard(path, schema.WarnStageOrder,
				fmt.Sprintf("cannot verify stage ordering for %s -> %s: stage unknown", from.Name, to.Name))
		}
		return
	}

	if srcStage > dstStage {
		result.AddHard(path, schema.WarnStageOrder,
			fmt.Sprintf("%s (stage %d) must not run before %s (stage %d)",
				from.Name, srcStage, to.Name, dstStage))
	}
}

// checkGlobalRefs flags ${{globals.*}} references in node configs that
// name keys absent from the workflow globals. Advisory only: globals can
// be defined after the config that uses them.
func checkGlobalRefs(result *schema.ValidationResult, g *graph.Graph) {
	globals := g.Globals()
	for _, n := range g.Nodes() {
		for key, value := range n.Config {
			s, ok := value.(string)
			if !ok {
				continue
			}
			for _, ref := range expressions.ScanGlobalRefs(s) {
				if _, defined := globals[ref]; !defined {
					result.AddAdvisory(fmt.Sprintf("nodes[%s].config[%s]", n.ID, key),
						schema.WarnUnknownGlobal,
						fmt.Sprintf("%s references undefined global %q", n.Name, ref))
				}
			}
		}
	}
}
