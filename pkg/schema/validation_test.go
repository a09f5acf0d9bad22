package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_Empty(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.RunnableOK())
	assert.NoError(t, r.ToError())
	assert.Empty(t, r.Messages())
}

func TestValidationResult_AdvisoriesDoNotBlock(t *testing.T) {
	r := &ValidationResult{}
	r.AddAdvisory("nodes[n1]", WarnMissingMetadata, "tool \"ghost\" has no catalog metadata")

	assert.True(t, r.RunnableOK())
	assert.NoError(t, r.ToError())
	assert.Equal(t, []string{"tool \"ghost\" has no catalog metadata"}, r.Messages())
}

func TestValidationResult_HardBlocks(t *testing.T) {
	r := &ValidationResult{}
	r.AddHard("/", WarnNoSingleStart, "workflow needs exactly one start node")
	r.AddAdvisory("nodes[n1]", WarnMissingMetadata, "missing metadata")

	assert.False(t, r.RunnableOK())

	err := r.ToError()
	require.Error(t, err)
	re, ok := err.(*ReconError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, re.Code)
	assert.Equal(t, "workflow needs exactly one start node", re.Message)

	// Hard issues come first in the flattened view.
	msgs := r.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "workflow needs exactly one start node", msgs[0])
}

func TestValidationResult_Merge(t *testing.T) {
	a := &ValidationResult{}
	a.AddHard("/", WarnIsland, "island")

	b := &ValidationResult{}
	b.AddAdvisory("/", WarnUnknownGlobal, "unknown global")

	a.Merge(b)
	a.Merge(nil)

	assert.Len(t, a.Hard, 1)
	assert.Len(t, a.Advisories, 1)
}

func TestValidationResult_MultipleHardSummarized(t *testing.T) {
	r := &ValidationResult{}
	r.AddHard("/", WarnNoSingleStart, "no start")
	r.AddHard("/", WarnNoSingleEnd, "no end")

	err := r.ToError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 blocking issues")
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCanceled.Terminal())
	assert.False(t, RunStatusQueued.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.False(t, RunStatusPaused.Terminal())
}
