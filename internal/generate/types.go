// Package generate maps structured queries to executable Go fragments.
//
// Every generator emits fragments under the same contract: a snippet that
// declares
//
//	func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error)
//
// with only allow-listed imports. The sandbox wraps the snippet into a main
// package, binds the dataset columns and calls Analyze. The generation
// strategy is substitutable; the deterministic template generator is the
// default and a model-backed generator satisfies the same interface.
package generate

import (
	"context"
	"fmt"

	"quill/internal/query"
)

// GeneratedCode is an immutable fragment plus the names it expects bound.
type GeneratedCode struct {
	Source         string   `json:"source"`
	DeclaredInputs []string `json:"declared_inputs"`
}

// Generator produces code for a structured query. Generate must be
// deterministic for a fixed (query, Version) pair; generators that cannot
// guarantee byte-identical output (model-backed ones) expose their model
// and settings through Version so replays can at least be audited.
// Generate honors ctx cancellation; model-backed generators can block on
// the network and must abort when the caller gives up on the turn.
type Generator interface {
	Generate(ctx context.Context, q query.StructuredQuery) (GeneratedCode, error)
	Version() string
}

// GenerationError is the typed failure for unsatisfiable or
// out-of-capability requests. It is never a silently wrong fragment.
type GenerationError struct {
	Reason string
	Query  string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("cannot generate code for %q: %s", e.Query, e.Reason)
}

// declaredInputs is the fixed binding contract shared by all generators.
func declaredInputs() []string { return []string{"nums", "strs"} }
