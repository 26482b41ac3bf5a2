// Package dataset loads tabular files into an in-memory column store and
// exposes their schema. A Dataset is immutable once loaded; the session
// controller replaces it wholesale on an explicit reload.
package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when the file extension has no
	// registered reader.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")

	// ErrInvalidData is returned when a reader produced an empty or
	// non-tabular result.
	ErrInvalidData = errors.New("dataset is empty or not tabular")
)

// ColumnType classifies a column as numeric or textual.
type ColumnType int

const (
	TypeNumber ColumnType = iota
	TypeText
)

func (t ColumnType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeText:
		return "text"
	default:
		return "unknown"
	}
}

// Column is one entry of an ordered schema.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is an immutable in-memory table. Numeric columns live in numbers,
// textual columns in texts; both are keyed by column name.
type Dataset struct {
	source  string
	columns []Column
	numbers map[string][]float64
	texts   map[string][]string
	rows    int
}

// Source returns the path the dataset was loaded from.
func (d *Dataset) Source() string { return d.source }

// Rows returns the row count.
func (d *Dataset) Rows() int { return d.rows }

// Schema returns a copy of the ordered column list. Callers may hold on to
// the returned slice; it never aliases the dataset's own schema.
func (d *Dataset) Schema() []Column {
	out := make([]Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// Numbers exposes the numeric columns. The returned map is the dataset's
// own; callers that hand it to untrusted code must copy it first.
func (d *Dataset) Numbers() map[string][]float64 { return d.numbers }

// Texts exposes the textual columns, owned the same way as Numbers.
func (d *Dataset) Texts() map[string][]string { return d.texts }

// Column looks up a column by name.
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// build converts a raw string table into a typed Dataset, inferring a type
// for every column.
func build(source string, raw *rawTable) (*Dataset, error) {
	if raw == nil || len(raw.headers) == 0 || len(raw.rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidData, source)
	}

	d := &Dataset{
		source:  source,
		numbers: make(map[string][]float64),
		texts:   make(map[string][]string),
		rows:    len(raw.rows),
	}

	for i, name := range raw.headers {
		if name == "" {
			return nil, fmt.Errorf("%w: column %d has no name", ErrInvalidData, i)
		}
		cells := raw.column(i)
		if inferNumeric(cells) {
			vals := make([]float64, len(cells))
			for j, c := range cells {
				vals[j] = parseNumber(c)
			}
			d.columns = append(d.columns, Column{Name: name, Type: TypeNumber})
			d.numbers[name] = vals
		} else {
			d.columns = append(d.columns, Column{Name: name, Type: TypeText})
			d.texts[name] = cells
		}
	}

	return d, nil
}

// rawTable is the untyped intermediate every reader produces.
type rawTable struct {
	headers []string
	rows    [][]string
}

// column extracts cell i of every row, padding short rows with "".
func (t *rawTable) column(i int) []string {
	out := make([]string, len(t.rows))
	for j, row := range t.rows {
		if i < len(row) {
			out[j] = row[i]
		}
	}
	return out
}
