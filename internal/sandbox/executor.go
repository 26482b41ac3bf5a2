// Package sandbox runs validated fragments in a yaegi interpreter with the
// dataset bound into scope and a wall-clock time bound. Generated code is
// untrusted: it cannot be relied on to honor cooperative cancellation, so
// on timeout the worker goroutine is abandoned and its result discarded.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"quill/internal/dataset"
	"quill/internal/generate"
)

// analyzeFunc is the contract every fragment compiles down to.
type analyzeFunc = func(map[string][]float64, map[string][]string) (interface{}, error)

// Sandbox executes fragments. Each execution uses a fresh interpreter, so
// no state survives between turns through this layer.
type Sandbox struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Sandbox {
	return &Sandbox{log: log}
}

// result travels from the worker goroutine; the worker owns the stdout
// buffer, so the value crosses the channel fully formed.
type result struct {
	value  interface{}
	stdout string
	err    error
	kind   string
}

// Execute runs the fragment against the dataset under the given timeout.
// Only the declared inputs are bound, and they are bound as deep copies:
// the validator rejects writes into the inputs, but interpreted code is
// untrusted and the session's dataset must survive it regardless. Every
// failure mode comes back as an Outcome.
func (s *Sandbox) Execute(ctx context.Context, code generate.GeneratedCode, ds *dataset.Dataset, timeout time.Duration) Outcome {
	if ds == nil {
		return Failure(FailDatasetError, "no dataset bound for execution")
	}

	nums := cloneNumbers(ds.Numbers())
	strs := cloneTexts(ds.Texts())

	done := make(chan result, 1)
	go func() {
		done <- runFragment(code.Source, nums, strs)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return Failure(res.kind, res.err.Error())
		}
		s.log.Debug("fragment executed", zap.Duration("timeout", timeout))
		return Success(res.value, res.stdout)
	case <-timer.C:
		// The worker cannot be killed in-process; it is abandoned and its
		// eventual result dropped on the floor via the buffered channel.
		s.log.Warn("fragment timed out", zap.Duration("timeout", timeout))
		return Timeout()
	case <-ctx.Done():
		return Failure(FailInterrupted, ctx.Err().Error())
	}
}

// runFragment evaluates the fragment in a fresh interpreter and calls its
// Analyze entry point. Panics from interpreted code are recovered and
// classified, never propagated.
func runFragment(src string, nums map[string][]float64, strs map[string][]string) (res result) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			res = result{err: fmt.Errorf("fragment panicked: %s", msg), kind: classifyMessage(msg)}
		}
	}()

	var stdout, stderr strings.Builder
	i := interp.New(interp.Options{Stdout: &stdout, Stderr: &stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		return result{err: fmt.Errorf("loading interpreter stdlib: %w", err), kind: FailUnclassified}
	}

	if _, err := i.Eval(wrapFragment(src)); err != nil {
		return result{err: fmt.Errorf("fragment evaluation failed: %w", err), kind: classifyMessage(err.Error())}
	}

	fn, err := i.Eval("main.Analyze")
	if err != nil {
		return result{err: fmt.Errorf("Analyze entry point not found: %w", err), kind: FailTypeMismatch}
	}

	analyze, ok := fn.Interface().(analyzeFunc)
	if !ok {
		return result{
			err:  fmt.Errorf("Analyze has the wrong signature (want func(map[string][]float64, map[string][]string) (interface{}, error))"),
			kind: FailTypeMismatch,
		}
	}

	value, err := analyze(nums, strs)
	if err != nil {
		return result{err: err, kind: classifyMessage(err.Error()), stdout: stdout.String()}
	}
	return result{value: value, stdout: stdout.String()}
}

func cloneNumbers(src map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for k, col := range src {
		cp := make([]float64, len(col))
		copy(cp, col)
		out[k] = cp
	}
	return out
}

func cloneTexts(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for k, col := range src {
		cp := make([]string, len(col))
		copy(cp, col)
		out[k] = cp
	}
	return out
}

// wrapFragment mirrors validate.wrap: fragments are snippets, not full
// files, and get a main package clause prepended.
func wrapFragment(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}

// classifyMessage buckets a failure message into a stable kind. Messages
// from template fragments are phrased to land in the right bucket.
func classifyMessage(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "missing column"):
		return FailMissingColumn
	case strings.Contains(lower, "division by zero"),
		strings.Contains(lower, "divide by zero"):
		return FailDivisionByZero
	case strings.Contains(lower, "cannot use"),
		strings.Contains(lower, "mismatched types"),
		strings.Contains(lower, "cannot convert"),
		strings.Contains(lower, "invalid operation"):
		return FailTypeMismatch
	default:
		return FailUnclassified
	}
}
