package sandbox

import (
	"fmt"

	"quill/internal/validate"
)

// OutcomeKind tags the variant of an execution outcome.
type OutcomeKind int

const (
	KindSuccess OutcomeKind = iota
	KindTimeout
	KindFailure
	KindRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindFailure:
		return "failure"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Failure kinds recorded with KindFailure outcomes. The controller also
// uses this type for stage failures upstream of the sandbox, so the one
// outcome value covers the whole turn.
const (
	FailTypeMismatch      = "type-mismatch"
	FailMissingColumn     = "missing-column"
	FailDivisionByZero    = "division-by-zero"
	FailInterrupted       = "interrupted"
	FailUnclassified      = "unclassified"
	FailStructuringError  = "structuring-error"
	FailGenerationError   = "generation-error"
	FailDatasetError      = "dataset-error"
)

// Outcome is the single value every turn resolves to. Callers always
// receive one; no stage lets a raw fault escape.
type Outcome struct {
	Kind        OutcomeKind          `json:"kind"`
	Value       any                  `json:"value,omitempty"`
	Stdout      string               `json:"stdout,omitempty"`
	FailureKind string               `json:"failure_kind,omitempty"`
	Message     string               `json:"message,omitempty"`
	Violations  []validate.Violation `json:"violations,omitempty"`
}

func Success(value any, stdout string) Outcome {
	return Outcome{Kind: KindSuccess, Value: value, Stdout: stdout}
}

func Timeout() Outcome {
	return Outcome{Kind: KindTimeout, Message: "execution exceeded its time bound"}
}

func Failure(kind, message string) Outcome {
	return Outcome{Kind: KindFailure, FailureKind: kind, Message: message}
}

func Rejected(violations []validate.Violation) Outcome {
	return Outcome{Kind: KindRejected, Violations: violations, Message: "fragment rejected by safety policy"}
}

// Summary renders a one-line description for history entries.
func (o Outcome) Summary() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("success: %v", o.Value)
	case KindTimeout:
		return "timeout"
	case KindFailure:
		return fmt.Sprintf("failure(%s): %s", o.FailureKind, o.Message)
	case KindRejected:
		if len(o.Violations) > 0 {
			return fmt.Sprintf("rejected(%s)", o.Violations[0].RuleID)
		}
		return "rejected"
	default:
		return "unknown"
	}
}
