package generate

import (
	"fmt"
	"strings"
	"text/template"
)

// fragmentData is the fill-in context for one fragment template.
type fragmentData struct {
	Column      string
	Column2     string
	Text        bool // distinct over a text column
	Filter      *filterClause
	Round       bool
	RoundFactor string
	Percent     bool
}

// filterClause is a parsed "where COL OP VALUE" restriction.
type filterClause struct {
	Column string
	Op     string
	Value  string
}

// shared sub-templates: "filter" materializes the selected rows into vals,
// "finish" applies format and precision requirements to result.
const sharedDefs = `
{{define "filter"}}{{if .Filter}}	fcol, fok := nums["{{.Filter.Column}}"]
	if !fok {
		return nil, errors.New("missing column: {{.Filter.Column}}")
	}
	vals := make([]float64, 0, len(col))
	for i, v := range col {
		if i < len(fcol) && fcol[i] {{.Filter.Op}} {{.Filter.Value}} {
			vals = append(vals, v)
		}
	}
{{else}}	vals := col
{{end}}{{end}}
{{define "finish"}}{{if .Percent}}	result *= 100
{{end}}{{if .Round}}	result = math.Round(result*{{.RoundFactor}}) / {{.RoundFactor}}
{{end}}{{end}}`

var fragmentBodies = map[string]string{
	"mean": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	if len(vals) == 0 {
		return nil, errors.New("division by zero: no rows selected")
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	result := total / float64(len(vals))
{{template "finish" .}}	return result, nil
}
`,

	"sum": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	result := 0.0
	for _, v := range vals {
		result += v
	}
{{template "finish" .}}	return result, nil
}
`,

	"min": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	if len(vals) == 0 {
		return nil, errors.New("no rows selected")
	}
	result := vals[0]
	for _, v := range vals[1:] {
		if v < result {
			result = v
		}
	}
{{template "finish" .}}	return result, nil
}
`,

	"max": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	if len(vals) == 0 {
		return nil, errors.New("no rows selected")
	}
	result := vals[0]
	for _, v := range vals[1:] {
		if v > result {
			result = v
		}
	}
{{template "finish" .}}	return result, nil
}
`,

	"median": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	if len(vals) == 0 {
		return nil, errors.New("no rows selected")
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	var result float64
	if len(sorted)%2 == 0 {
		result = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		result = sorted[mid]
	}
{{template "finish" .}}	return result, nil
}
`,

	"stddev": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	col, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{template "filter" .}}	if len(vals) == 0 {
		return nil, errors.New("division by zero: no rows selected")
	}
	total := 0.0
	for _, v := range vals {
		total += v
	}
	mean := total / float64(len(vals))
	ss := 0.0
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	result := math.Sqrt(ss / float64(len(vals)))
{{template "finish" .}}	return result, nil
}
`,

	"count": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
{{if .Filter}}	fcol, fok := nums["{{.Filter.Column}}"]
	if !fok {
		return nil, errors.New("missing column: {{.Filter.Column}}")
	}
	n := 0
	for _, v := range fcol {
		if v {{.Filter.Op}} {{.Filter.Value}} {
			n++
		}
	}
	return n, nil
{{else}}	for _, col := range nums {
		return len(col), nil
	}
	for _, col := range strs {
		return len(col), nil
	}
	return 0, nil
{{end}}}
`,

	"distinct": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
{{if .Text}}	col, ok := strs["{{.Column}}"]
{{else}}	col, ok := nums["{{.Column}}"]
{{end}}	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
{{if .Text}}	seen := make(map[string]struct{}, len(col))
{{else}}	seen := make(map[float64]struct{}, len(col))
{{end}}	for _, v := range col {
		seen[v] = struct{}{}
	}
	return len(seen), nil
}
`,

	"correlation": `func Analyze(nums map[string][]float64, strs map[string][]string) (interface{}, error) {
	a, ok := nums["{{.Column}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column}}")
	}
	b, ok := nums["{{.Column2}}"]
	if !ok {
		return nil, errors.New("missing column: {{.Column2}}")
	}
	if len(a) == 0 || len(a) != len(b) {
		return nil, errors.New("columns are empty or differ in length")
	}
	n := float64(len(a))
	var sa, sb, saa, sbb, sab float64
	for i := range a {
		sa += a[i]
		sb += b[i]
		saa += a[i] * a[i]
		sbb += b[i] * b[i]
		sab += a[i] * b[i]
	}
	den := math.Sqrt(n*saa-sa*sa) * math.Sqrt(n*sbb-sb*sb)
	if den == 0 {
		return nil, errors.New("division by zero: a column has zero variance")
	}
	result := (n*sab - sa*sb) / den
{{template "finish" .}}	return result, nil
}
`,
}

// fragmentTemplates holds the parsed templates, keyed by capability name.
var fragmentTemplates = parseFragmentTemplates()

func parseFragmentTemplates() map[string]*template.Template {
	out := make(map[string]*template.Template, len(fragmentBodies))
	for name, body := range fragmentBodies {
		t, err := template.New(name).Parse(sharedDefs + "{{define \"body\"}}" + body + "{{end}}")
		if err != nil {
			panic(fmt.Sprintf("generate: bad fragment template %q: %v", name, err))
		}
		out[name] = t
	}
	return out
}

// renderFragment executes a capability's template and prefixes the import
// block the rendered body actually needs, so fragments never carry unused
// imports past the validator.
func renderFragment(name string, data fragmentData) (string, error) {
	t, ok := fragmentTemplates[name]
	if !ok {
		return "", fmt.Errorf("no fragment template for %q", name)
	}
	var b strings.Builder
	if err := t.ExecuteTemplate(&b, "body", data); err != nil {
		return "", err
	}
	body := b.String()

	var imports []string
	for _, pkg := range []string{"errors", "math", "sort"} {
		if strings.Contains(body, pkg+".") {
			imports = append(imports, pkg)
		}
	}

	if len(imports) == 0 {
		return body, nil
	}
	var src strings.Builder
	src.WriteString("import (\n")
	for _, pkg := range imports {
		fmt.Fprintf(&src, "\t%q\n", pkg)
	}
	src.WriteString(")\n\n")
	src.WriteString(body)
	return src.String(), nil
}
