package generate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"quill/internal/dataset"
	"quill/internal/query"
)

// templateVersion is recorded with every history entry produced by this
// generator; bump it whenever templates or matching rules change meaning.
const templateVersion = "template/v1"

// TemplateGenerator compiles queries against the embedded capability table.
// It is fully deterministic: the same structured query always yields the
// same fragment for a fixed Version.
type TemplateGenerator struct {
	caps []capability
	log  *zap.Logger
}

func NewTemplateGenerator(log *zap.Logger) (*TemplateGenerator, error) {
	caps, err := loadCapabilities()
	if err != nil {
		return nil, err
	}
	return &TemplateGenerator{caps: caps, log: log}, nil
}

func (g *TemplateGenerator) Version() string { return templateVersion }

var (
	whereRe = regexp.MustCompile(`(?i)\bwhere\s+([A-Za-z_][A-Za-z0-9_]*)\s*(>=|<=|==|=|>|<)\s*(-?\d+(?:\.\d+)?)`)

	// Requests the capability table can never serve; failing them with a
	// typed error beats emitting a wrong fragment.
	plottingRe = regexp.MustCompile(`(?i)\b(plot|chart|histogram|graph|draw|visuali[sz]e)\b`)
	fileOpsRe  = regexp.MustCompile(`(?i)\b(delete|remove|write|save|open|download|upload)\b.*\b(file|files|directory|folder|/\w+)`)
)

// Generate compiles the query into a Go fragment, or fails with a
// *GenerationError when the request is out of capability or references
// columns that cannot be resolved. Compilation is local and fast; ctx is
// part of the Generator contract and unused here.
func (g *TemplateGenerator) Generate(ctx context.Context, q query.StructuredQuery) (GeneratedCode, error) {
	lower := strings.ToLower(q.Text)

	if plottingRe.MatchString(lower) {
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "plotting is outside the generator's capability set"}
	}
	if fileOpsRe.MatchString(lower) {
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "file and system operations are outside the generator's capability set"}
	}

	op, ok := g.matchCapability(lower)
	if !ok {
		return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "no supported operation recognized"}
	}

	filter, err := g.parseFilter(q)
	if err != nil {
		return GeneratedCode{}, err
	}

	data := fragmentData{Filter: filter}
	if op.Arity > 0 {
		if len(q.Schema) == 0 {
			return GeneratedCode{}, &GenerationError{Query: q.Text, Reason: "query references columns but no dataset is loaded"}
		}
		cols, err := g.resolveColumns(q, op, filter)
		if err != nil {
			return GeneratedCode{}, err
		}
		data.Column = cols[0].Name
		data.Text = cols[0].Type == dataset.TypeText
		if op.Arity == 2 {
			data.Column2 = cols[1].Name
		}
	}

	if q.Requirements["format"] == "percent" && op.Name != "count" && op.Name != "distinct" {
		data.Percent = true
	}
	if p, ok := q.Requirements["precision"]; ok && op.Name != "count" && op.Name != "distinct" {
		digits, err := strconv.Atoi(p)
		if err == nil && digits >= 0 && digits <= 12 {
			data.Round = true
			data.RoundFactor = strconv.FormatFloat(math.Pow(10, float64(digits)), 'f', -1, 64)
		}
	}

	src, err := renderFragment(op.Name, data)
	if err != nil {
		return GeneratedCode{}, fmt.Errorf("rendering %s fragment: %w", op.Name, err)
	}

	g.log.Debug("generated fragment",
		zap.String("capability", op.Name),
		zap.String("column", data.Column),
		zap.Bool("filtered", filter != nil))
	return GeneratedCode{Source: src, DeclaredInputs: declaredInputs()}, nil
}

// matchCapability picks the capability with the longest keyword present in
// the query, so "distinct count" selects distinct, not count.
func (g *TemplateGenerator) matchCapability(lower string) (capability, bool) {
	var best capability
	bestLen := 0
	for _, c := range g.caps {
		for _, kw := range c.Keywords {
			if len(kw) > bestLen && containsWord(lower, kw) {
				best = c
				bestLen = len(kw)
			}
		}
	}
	return best, bestLen > 0
}

// parseFilter extracts an optional "where COL OP VALUE" clause. The filter
// column must resolve to a numeric column of the snapshot schema.
func (g *TemplateGenerator) parseFilter(q query.StructuredQuery) (*filterClause, error) {
	m := whereRe.FindStringSubmatch(q.Text)
	if m == nil {
		return nil, nil
	}
	col, ok := findColumn(q.Schema, m[1])
	if !ok {
		return nil, &GenerationError{Query: q.Text, Reason: fmt.Sprintf("filter column %q is not in the dataset", m[1])}
	}
	if col.Type != dataset.TypeNumber {
		return nil, &GenerationError{Query: q.Text, Reason: fmt.Sprintf("filter column %q is not numeric", m[1])}
	}
	op := m[2]
	if op == "=" {
		op = "=="
	}
	return &filterClause{Column: col.Name, Op: op, Value: m[3]}, nil
}

// resolveColumns finds the schema columns the query names, in order of
// appearance, with the where clause stripped so its column is not counted
// as an operand.
func (g *TemplateGenerator) resolveColumns(q query.StructuredQuery, op capability, filter *filterClause) ([]dataset.Column, error) {
	text := whereRe.ReplaceAllString(q.Text, "")
	lower := strings.ToLower(text)

	type hit struct {
		col dataset.Column
		pos int
	}
	var hits []hit
	for _, col := range q.Schema {
		pos := wordIndex(lower, strings.ToLower(col.Name))
		if pos < 0 {
			continue
		}
		if op.Numeric && col.Type != dataset.TypeNumber {
			return nil, &GenerationError{Query: q.Text, Reason: fmt.Sprintf("column %q is not numeric", col.Name)}
		}
		hits = append(hits, hit{col: col, pos: pos})
	}
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	if len(hits) < op.Arity {
		return nil, &GenerationError{Query: q.Text, Reason: fmt.Sprintf("%s needs %d column(s) but the query names %d", op.Name, op.Arity, len(hits))}
	}
	cols := make([]dataset.Column, op.Arity)
	for i := range cols {
		cols[i] = hits[i].col
	}
	return cols, nil
}

func findColumn(schema []dataset.Column, name string) (dataset.Column, bool) {
	for _, c := range schema {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return dataset.Column{}, false
}

// containsWord reports whether kw occurs in s on word boundaries. kw may
// contain spaces ("standard deviation").
func containsWord(s, kw string) bool {
	return wordIndex(s, kw) >= 0
}

func wordIndex(s, kw string) int {
	if kw == "" {
		return -1
	}
	for start := 0; ; {
		i := strings.Index(s[start:], kw)
		if i < 0 {
			return -1
		}
		i += start
		before := i == 0 || !isWordByte(s[i-1])
		end := i + len(kw)
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return i
		}
		start = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
