package dataset

import (
	"strconv"
	"strings"
)

// inferSampleSize caps how many cells type inference inspects per column.
const inferSampleSize = 200

// inferNumeric reports whether a column should be treated as numeric: every
// sampled non-empty cell must parse as a float and at least one must be
// non-empty. Mixed columns fall back to text rather than dropping values.
func inferNumeric(cells []string) bool {
	sample := cells
	if len(sample) > inferSampleSize {
		sample = sample[:inferSampleSize]
	}

	seen := false
	for _, c := range sample {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, err := strconv.ParseFloat(c, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// parseNumber converts a cell to float64. Empty cells become zero; the
// column has already passed inferNumeric, so anything else parses.
func parseNumber(cell string) float64 {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0
	}
	v, _ := strconv.ParseFloat(cell, 64)
	return v
}
