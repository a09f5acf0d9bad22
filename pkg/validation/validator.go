// Package validation inspects the in-memory graph and the tool catalog
// to produce ordered, human-readable warnings. Pure recomputation: it is
// re-run after every structural mutation and has no side effects beyond
// the returned result.
package validation

import (
	"github.com/hexlane/reconchain/pkg/graph"
	"github.com/hexlane/reconchain/pkg/schema"
)

// StageLookup resolves a tool's position in the server-provided stage
// map. 0 means the stage is unknown. Satisfied by catalog.Adapter.
type StageLookup interface {
	StageOf(slug string) int
}

// Mode selects how checks behave when capability metadata is absent.
type Mode string

const (
	// Lenient degrades checks on metadata-less tools to advisories.
	Lenient Mode = "lenient"
	// Strict treats unverifiable bucket/stage checks as blocking.
	Strict Mode = "strict"
)

// Policy configures the validator.
type Policy struct {
	Mode Mode
}

// DefaultPolicy is the original behavior: lenient on missing metadata.
func DefaultPolicy() Policy { return Policy{Mode: Lenient} }

// ChainValidator validates workflow graphs against the single-linear-chain
// shape and the catalog's capability/stage declarations.
type ChainValidator struct {
	stages StageLookup
	policy Policy
}

// NewChainValidator creates a ChainValidator. stages may be nil to skip
// stage-ordering checks entirely.
func NewChainValidator(stages StageLookup, policy Policy) *ChainValidator {
	if policy.Mode == "" {
		policy.Mode = Lenient
	}
	return &ChainValidator{stages: stages, policy: policy}
}

// Validate runs the two-stage pipeline over the graph:
// 1. chain shape (start/end counts, islands, degree anomalies)
// 2. semantics (buckets, stage ordering, metadata, global references)
// Hard issues block run submission; advisories only surface in the UI.
func (v *ChainValidator) Validate(g *graph.Graph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if g == nil || g.NodeCount() == 0 {
		result.AddHard("/", schema.WarnNoSingleStart, "workflow needs exactly one start node (found 0)")
		result.AddHard("/", schema.WarnNoSingleEnd, "workflow needs exactly one end node (found 0)")
		return result
	}

	result.Merge(validateChain(g))
	result.Merge(validateSemantic(g, v.stages, v.policy))
	return result
}
