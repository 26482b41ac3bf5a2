package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// readerFunc parses one on-disk format into the untyped intermediate table.
type readerFunc func(path string) (*rawTable, error)

// Loader dispatches by file extension to a fixed, closed set of readers.
// The mapping is validated when the loader is constructed, not at load time.
type Loader struct {
	readers map[string]readerFunc
	log     *zap.Logger
}

// NewLoader builds a loader with the full reader registry: delimited text,
// spreadsheet, line-delimited records and columnar binary.
func NewLoader(log *zap.Logger) *Loader {
	l := &Loader{
		readers: make(map[string]readerFunc),
		log:     log,
	}
	l.register(".csv", readCSV)
	l.register(".xlsx", readXLSX)
	l.register(".ndjson", readNDJSON)
	l.register(".jsonl", readNDJSON)
	l.register(".parquet", readParquet)
	return l
}

// register validates a registry entry. The set is closed and assembled in
// NewLoader only, so a bad entry is a programming error.
func (l *Loader) register(ext string, fn readerFunc) {
	if !strings.HasPrefix(ext, ".") || fn == nil {
		panic(fmt.Sprintf("dataset: invalid reader registration %q", ext))
	}
	if _, dup := l.readers[ext]; dup {
		panic(fmt.Sprintf("dataset: duplicate reader for %q", ext))
	}
	l.readers[ext] = fn
}

// Extensions returns the registered extensions, for error messages and help.
func (l *Loader) Extensions() []string {
	out := make([]string, 0, len(l.readers))
	for ext := range l.readers {
		out = append(out, ext)
	}
	return out
}

// Load reads the file at path into a Dataset.
func (l *Loader) Load(path string) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset file not accessible: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	reader, ok := l.readers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	raw, err := reader(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	d, err := build(path, raw)
	if err != nil {
		return nil, err
	}

	l.log.Info("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", d.Rows()),
		zap.Int("columns", len(d.Schema())))
	return d, nil
}
