// Package session drives the conversational analysis loop: one Context
// accumulates state across turns, and the Controller runs each turn
// through structuring, generation, validation, sandboxed execution and
// history persistence.
package session

import (
	"github.com/google/uuid"

	"quill/internal/query"
	"quill/internal/sandbox"
)

// Context is the per-session state carried between turns. It is treated
// as a value: Apply returns a new Context rather than mutating, so a
// failed turn can simply discard the candidate state.
type Context struct {
	ID           string
	DatasetPath  string
	Requirements map[string]string
	LastOutcome  *sandbox.Outcome
	Turns        int
}

// NewContext returns a fresh session context with a random identity.
func NewContext() Context {
	return Context{
		ID:           uuid.NewString(),
		Requirements: map[string]string{},
	}
}

// Apply folds one completed turn into the context. Requirements extracted
// from the query stick only when the turn actually succeeded; a rejected
// or failed turn must not poison later generations with constraints that
// never produced a result.
func Apply(old Context, q query.StructuredQuery, out sandbox.Outcome) Context {
	next := old
	next.Turns = old.Turns + 1
	next.LastOutcome = &out

	next.Requirements = make(map[string]string, len(old.Requirements)+len(q.Requirements))
	for k, v := range old.Requirements {
		next.Requirements[k] = v
	}
	if out.Kind == sandbox.KindSuccess {
		for k, v := range q.Requirements {
			next.Requirements[k] = v
		}
	}
	return next
}

// Snapshot renders the context as the flat map stored in each history
// entry. Requirements are prefixed so they never collide with the fixed
// keys.
func (c Context) Snapshot() map[string]any {
	snap := map[string]any{
		"session": c.ID,
		"dataset": c.DatasetPath,
		"turn":    c.Turns,
	}
	for k, v := range c.Requirements {
		snap["req."+k] = v
	}
	return snap
}
