package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexlane/reconchain/pkg/schema"
)

func testScope() *Scope {
	return &Scope{
		Globals:  map[string]string{"domain": "example.com", "depth": "3"},
		Workflow: map[string]any{"id": "wf-1", "title": "perimeter scan"},
	}
}

func newTestInterpolator(t *testing.T) *Interpolator {
	t.Helper()
	interp, err := NewInterpolator()
	require.NoError(t, err)
	return interp
}

// --- ${{...}} substitution ---

func TestResolveValue_PlainStringPassesThrough(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(), "no tokens here", testScope())
	require.NoError(t, err)
	assert.Equal(t, "no tokens here", out)
}

func TestResolveValue_EmbeddedGlobal(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(), "scan ${{globals.domain}} deeply", testScope())
	require.NoError(t, err)
	assert.Equal(t, "scan example.com deeply", out)
}

func TestResolveValue_WholeTokenKeepsType(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(), "${{workflow.title}}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "perimeter scan", out)
}

func TestResolveValue_MultipleTokens(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(),
		"${{globals.domain}}:${{globals.depth}}", testScope())
	require.NoError(t, err)
	assert.Equal(t, "example.com:3", out)
}

func TestResolveValue_UndefinedGlobal(t *testing.T) {
	interp := newTestInterpolator(t)
	_, err := interp.ResolveValue(context.Background(), "${{globals.missing}}", testScope())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInterpolation))
}

func TestResolveValue_UnknownNamespace(t *testing.T) {
	interp := newTestInterpolator(t)
	_, err := interp.ResolveValue(context.Background(), "${{secrets.apikey}}", testScope())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeInterpolation))
}

func TestResolveValue_UnclosedTokenIsLiteral(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(), "broken ${{globals.domain", testScope())
	require.NoError(t, err)
	assert.Equal(t, "broken ${{globals.domain", out)
}

// --- engine-prefixed values ---

func TestResolveValue_ExprEngine(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(),
		`expr: globals.domain + ":" + globals.depth`, testScope())
	require.NoError(t, err)
	assert.Equal(t, "example.com:3", out)
}

func TestResolveValue_CELEngine(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(),
		`cel: globals.domain == "example.com"`, testScope())
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestResolveValue_JQEngine(t *testing.T) {
	interp := newTestInterpolator(t)
	out, err := interp.ResolveValue(context.Background(),
		`jq: .globals.domain`, testScope())
	require.NoError(t, err)
	assert.Equal(t, "example.com", out)
}

// --- config maps ---

func TestResolveConfig(t *testing.T) {
	interp := newTestInterpolator(t)
	config := map[string]any{
		"target":  "${{globals.domain}}",
		"threads": 8,
		"label":   "run for ${{workflow.title}}",
	}
	out, err := interp.ResolveConfig(context.Background(), config, testScope())
	require.NoError(t, err)
	assert.Equal(t, "example.com", out["target"])
	assert.Equal(t, 8, out["threads"])
	assert.Equal(t, "run for perimeter scan", out["label"])
}

// --- scanning ---

func TestScanGlobalRefs(t *testing.T) {
	refs := ScanGlobalRefs("scan ${{globals.domain}} at ${{globals.depth}} via ${{workflow.id}}")
	assert.Equal(t, []string{"domain", "depth"}, refs)

	assert.Empty(t, ScanGlobalRefs("nothing dynamic"))
	assert.Empty(t, ScanGlobalRefs("${{globals.}}"))
}
