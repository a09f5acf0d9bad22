package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/hexlane/reconchain/pkg/schema"
)

// Scope holds the data available to node-config resolution.
type Scope struct {
	Globals  map[string]string // workflow-wide key/value parameters
	Workflow map[string]any    // workflow metadata (id, title, ...)
}

// data converts the scope into the engines' environment map.
func (s *Scope) data() map[string]any {
	globals := make(map[string]any, len(s.Globals))
	for k, v := range s.Globals {
		globals[k] = v
	}
	wf := s.Workflow
	if wf == nil {
		wf = map[string]any{}
	}
	return map[string]any{"globals": globals, "workflow": wf}
}

// Interpolator resolves the dynamic parts of node config values:
// ${{globals.key}} / ${{workflow.field}} tokens embedded in strings, and
// whole-value engine expressions ("expr: ...", "cel: ...", "jq: ...").
type Interpolator struct {
	engines map[string]Engine
}

// NewInterpolator creates an Interpolator with the standard three engines.
func NewInterpolator() (*Interpolator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Interpolator{
		engines: map[string]Engine{
			"expr": NewExprEngine(),
			"cel":  celEngine,
			"jq":   NewGoJQEngine(),
		},
	}, nil
}

// ResolveConfig resolves every string value in a node config map,
// returning a new map. Non-string values pass through untouched.
func (interp *Interpolator) ResolveConfig(ctx context.Context, config map[string]any, scope *Scope) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for key, value := range config {
		s, ok := value.(string)
		if !ok {
			out[key] = value
			continue
		}
		resolved, err := interp.ResolveValue(ctx, s, scope)
		if err != nil {
			return nil, err
		}
		out[key] = resolved
	}
	return out, nil
}

// ResolveValue resolves one config value. Engine-prefixed values are
// evaluated whole and may produce any type; otherwise ${{...}} tokens are
// substituted in place. A value that is exactly one token keeps the
// referenced value's type.
func (interp *Interpolator) ResolveValue(ctx context.Context, value string, scope *Scope) (any, error) {
	trimmed := strings.TrimSpace(value)
	for name, engine := range interp.engines {
		prefix := name + ":"
		if strings.HasPrefix(trimmed, prefix) {
			return engine.Evaluate(ctx, strings.TrimSpace(trimmed[len(prefix):]), scope.data())
		}
	}

	tokens := scanTokens(value)
	if len(tokens) == 0 {
		return value, nil
	}

	// Exactly one token spanning the whole value: preserve the type.
	if len(tokens) == 1 && strings.TrimSpace(value) == tokens[0].raw {
		return interp.resolveRef(tokens[0].expr, scope)
	}

	var result strings.Builder
	last := 0
	for _, tok := range tokens {
		result.WriteString(value[last:tok.start])
		val, err := interp.resolveRef(tok.expr, scope)
		if err != nil {
			return nil, err
		}
		result.WriteString(stringify(val))
		last = tok.end
	}
	result.WriteString(value[last:])
	return result.String(), nil
}

// resolveRef resolves a single ${{...}} reference.
func (interp *Interpolator) resolveRef(expr string, scope *Scope) (any, error) {
	parts := strings.SplitN(expr, ".", 2)
	if len(parts) < 2 || parts[1] == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"invalid reference %q: expected <namespace>.<name>", expr)
	}

	switch parts[0] {
	case "globals":
		v, ok := scope.Globals[parts[1]]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"undefined global %q in ${{%s}}", parts[1], expr).
				WithDetails(map[string]any{"key": parts[1]})
		}
		return v, nil
	case "workflow":
		v, ok := scope.Workflow[parts[1]]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"unknown workflow field %q in ${{%s}}", parts[1], expr)
		}
		return v, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"unknown namespace %q in ${{%s}}; available: globals, workflow", parts[0], expr)
	}
}

// token is one ${{...}} occurrence inside a string value.
type token struct {
	start, end int    // byte offsets of the whole ${{...}} span
	raw        string // the span text including delimiters
	expr       string // trimmed inner expression
}

// scanTokens finds every ${{...}} span. Unclosed markers terminate the
// scan: the remainder is treated as literal text.
func scanTokens(input string) []token {
	var tokens []token
	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "${{")
		if idx == -1 {
			break
		}
		start := i + idx
		inner := start + 3
		end := strings.Index(input[inner:], "}}")
		if end == -1 {
			break
		}
		end += inner
		tokens = append(tokens, token{
			start: start,
			end:   end + 2,
			raw:   input[start : end+2],
			expr:  strings.TrimSpace(input[inner:end]),
		})
		i = end + 2
	}
	return tokens
}

// ScanGlobalRefs returns the global keys referenced by ${{globals.*}}
// tokens in a string value. Used by the validator to flag references to
// undefined globals without evaluating anything.
func ScanGlobalRefs(value string) []string {
	var keys []string
	for _, tok := range scanTokens(value) {
		if rest, ok := strings.CutPrefix(tok.expr, "globals."); ok && rest != "" {
			keys = append(keys, rest)
		}
	}
	return keys
}

// stringify renders a resolved value for in-place substitution.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
