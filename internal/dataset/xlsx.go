package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// readXLSX parses the first sheet of a spreadsheet. Formula cells come back
// as their cached values, which is what analysis wants.
func readXLSX(path string) (*rawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return &rawTable{}, nil
	}

	return &rawTable{headers: rows[0], rows: rows[1:]}, nil
}
