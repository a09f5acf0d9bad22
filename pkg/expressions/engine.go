// Package expressions evaluates the dynamic parts of node configuration:
// ${{...}} references to workflow globals, engine-prefixed expressions,
// and jq queries over run manifests.
package expressions

import "context"

// Engine evaluates expressions against the workflow scope.
// Three implementations: Expr (logic), CEL (conditions), GoJQ (transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
