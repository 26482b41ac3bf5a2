// Package query normalizes raw natural-language input into the structured
// form the code generator consumes: intent text, a schema snapshot taken at
// structuring time, and the accumulated analysis requirements.
package query

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"quill/internal/dataset"
)

// ErrEmptyQuery is returned when the raw text is blank after trimming.
var ErrEmptyQuery = errors.New("query text is empty")

// StructuredQuery is built fresh per turn and never mutated afterwards.
type StructuredQuery struct {
	Text         string            `json:"text"`
	Schema       []dataset.Column  `json:"schema"`
	Requirements map[string]string `json:"requirements"`
}

// Structurer turns raw text plus session state into a StructuredQuery.
type Structurer struct {
	log *zap.Logger
}

func NewStructurer(log *zap.Logger) *Structurer {
	return &Structurer{log: log}
}

var (
	precisionRe  = regexp.MustCompile(`(?i)\b(\d+)\s+decimal\s+places?\b`)
	percentRe    = regexp.MustCompile(`(?i)\bas\s+(a\s+)?percent(age)?\b`)
	previousRe   = regexp.MustCompile(`(?i)\b(previous|last)\s+(analysis|result|answer)\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Structure builds a StructuredQuery. The schema is snapshotted by value so
// a later dataset reload cannot retroactively change a recorded turn, and
// the accumulated requirements are copied before query-local overrides are
// merged on top.
func (s *Structurer) Structure(raw string, schema []dataset.Column, accumulated map[string]string) (StructuredQuery, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return StructuredQuery{}, ErrEmptyQuery
	}
	text = whitespaceRe.ReplaceAllString(text, " ")

	q := StructuredQuery{
		Text:         text,
		Schema:       snapshotSchema(schema),
		Requirements: make(map[string]string, len(accumulated)),
	}
	for k, v := range accumulated {
		q.Requirements[k] = v
	}
	for k, v := range extractRequirements(text) {
		q.Requirements[k] = v
	}

	s.log.Debug("structured query",
		zap.String("text", text),
		zap.Int("schema_columns", len(q.Schema)),
		zap.Int("requirements", len(q.Requirements)))
	return q, nil
}

func snapshotSchema(schema []dataset.Column) []dataset.Column {
	if schema == nil {
		return nil
	}
	out := make([]dataset.Column, len(schema))
	copy(out, schema)
	return out
}

// extractRequirements pulls explicit analysis requirements out of the query
// phrasing. Keys are stable so later turns can override earlier ones.
func extractRequirements(text string) map[string]string {
	reqs := make(map[string]string)
	if m := precisionRe.FindStringSubmatch(text); m != nil {
		reqs["precision"] = m[1]
	}
	if percentRe.MatchString(text) {
		reqs["format"] = "percent"
	}
	if previousRe.MatchString(text) {
		reqs["use_previous"] = "true"
	}
	return reqs
}
