package expressions

import (
	"context"

	"github.com/hexlane/reconchain/pkg/schema"
)

// ManifestQuery filters a run's output collections with a jq program.
// The program sees {"buckets": {...}, "counters": {...}} as its input,
// so queries like `.buckets.domains[] | select(test("api"))` work
// directly against recon output.
type ManifestQuery struct {
	engine *GoJQEngine
}

// NewManifestQuery creates a ManifestQuery.
func NewManifestQuery() *ManifestQuery {
	return &ManifestQuery{engine: NewGoJQEngine()}
}

// Run evaluates the query against the run's manifest. A run without a
// manifest yields nil rather than an error so callers can query
// unfinished runs safely.
func (q *ManifestQuery) Run(ctx context.Context, run *schema.Run, query string) (any, error) {
	if run == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "run is nil")
	}

	buckets := map[string][]any{}
	if run.Manifest != nil && run.Manifest.Buckets != nil {
		buckets = run.Manifest.Buckets
	}
	counters := map[string]int{}
	if run.Counters != nil {
		counters = run.Counters
	}

	// Normalize to plain JSON types for gojq.
	input := map[string]any{
		"buckets":  toAnyMap(buckets),
		"counters": countersToAny(counters),
	}
	return q.engine.Evaluate(ctx, query, input)
}

func toAnyMap(buckets map[string][]any) map[string]any {
	out := make(map[string]any, len(buckets))
	for k, v := range buckets {
		out[k] = v
	}
	return out
}

func countersToAny(counters map[string]int) map[string]any {
	out := make(map[string]any, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}
