package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// readCSV parses a delimited text file. Ragged or malformed rows are
// skipped rather than failing the whole load.
func readCSV(path string) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err == io.EOF {
		return &rawTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header row: %w", err)
	}

	t := &rawTable{headers: headers}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// readNDJSON parses line-delimited JSON objects. The schema is the sorted
// union of keys seen across all records, so records may omit fields.
func readNDJSON(path string) (*rawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]any
	keys := make(map[string]struct{})

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for k := range rec {
			keys[k] = struct{}{}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	headers := make([]string, 0, len(keys))
	for k := range keys {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	t := &rawTable{headers: headers}
	for _, rec := range records {
		row := make([]string, len(headers))
		for i, k := range headers {
			row[i] = cellString(rec[k])
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// cellString renders a decoded JSON value as a cell. Nested values are not
// tabular and come back as their JSON text, which inference treats as text.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
}
