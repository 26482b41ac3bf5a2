package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quill/internal/query"
	"quill/internal/sandbox"
	"quill/internal/session"
)

func TestNewContextHasIdentity(t *testing.T) {
	a := session.NewContext()
	b := session.NewContext()

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Requirements)
}

func TestApplySuccessMergesRequirements(t *testing.T) {
	old := session.NewContext()
	old.Requirements["format"] = "percent"

	q := query.StructuredQuery{Text: "mean", Requirements: map[string]string{"precision": "2"}}
	next := session.Apply(old, q, sandbox.Success(1.23, ""))

	assert.Equal(t, 1, next.Turns)
	assert.Equal(t, "2", next.Requirements["precision"])
	assert.Equal(t, "percent", next.Requirements["format"])
	// The old context is untouched.
	assert.NotContains(t, old.Requirements, "precision")
}

func TestApplyFailureKeepsRequirements(t *testing.T) {
	old := session.NewContext()
	old.Requirements["precision"] = "4"

	q := query.StructuredQuery{Text: "bogus", Requirements: map[string]string{"precision": "9"}}
	next := session.Apply(old, q, sandbox.Failure(sandbox.FailGenerationError, "nope"))

	assert.Equal(t, "4", next.Requirements["precision"])
	require.NotNil(t, next.LastOutcome)
	assert.Equal(t, sandbox.KindFailure, next.LastOutcome.Kind)
}

func TestApplyRejectedKeepsRequirements(t *testing.T) {
	old := session.NewContext()

	q := query.StructuredQuery{Text: "evil", Requirements: map[string]string{"precision": "1"}}
	next := session.Apply(old, q, sandbox.Rejected(nil))

	assert.NotContains(t, next.Requirements, "precision")
}

func TestSnapshotFlattensState(t *testing.T) {
	c := session.NewContext()
	c.DatasetPath = "data/raw/sales.csv"
	c.Turns = 3
	c.Requirements["precision"] = "2"

	snap := c.Snapshot()
	assert.Equal(t, c.ID, snap["session"])
	assert.Equal(t, "data/raw/sales.csv", snap["dataset"])
	assert.Equal(t, 3, snap["turn"])
	assert.Equal(t, "2", snap["req.precision"])
}
