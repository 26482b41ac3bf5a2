package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"quill/internal/dataset"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "sales.csv", "region,amount\nnorth,10.5\nsouth,20\neast,3.25\n")

	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Rows())
	require.Len(t, ds.Schema(), 2)
	assert.Equal(t, dataset.Column{Name: "region", Type: dataset.TypeText}, ds.Schema()[0])
	assert.Equal(t, dataset.Column{Name: "amount", Type: dataset.TypeNumber}, ds.Schema()[1])
	assert.Equal(t, []float64{10.5, 20, 3.25}, ds.Numbers()["amount"])
	assert.Equal(t, []string{"north", "south", "east"}, ds.Texts()["region"])
}

func TestLoadCSVSkipsMalformedRows(t *testing.T) {
	path := writeFile(t, "ragged.csv", "a,b\n1,2\n3\n4,5\n")

	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)
	// The short row still loads; missing cells pad to empty.
	assert.Equal(t, 3, ds.Rows())
}

func TestLoadNDJSON(t *testing.T) {
	path := writeFile(t, "events.ndjson",
		`{"user":"ana","count":3}`+"\n"+
			`{"user":"bo","count":7,"extra":"x"}`+"\n")

	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Rows())
	col, ok := ds.Column("count")
	require.True(t, ok)
	assert.Equal(t, dataset.TypeNumber, col.Type)
	assert.Equal(t, []float64{3, 7}, ds.Numbers()["count"])
	// Key union: "extra" exists for both rows, empty where absent.
	assert.Equal(t, []string{"", "x"}, ds.Texts()["extra"])
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"name", "score"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"ana", 91}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"bo", 74.5}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, []float64{91, 74.5}, ds.Numbers()["score"])
	assert.Equal(t, []string{"ana", "bo"}, ds.Texts()["name"])
}

func TestLoadParquet(t *testing.T) {
	type row struct {
		City string  `parquet:"city"`
		Temp float64 `parquet:"temp"`
	}
	path := filepath.Join(t.TempDir(), "weather.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[row](f)
	_, err = w.Write([]row{{"oslo", -2.5}, {"rome", 19}})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, []float64{-2.5, 19}, ds.Numbers()["temp"])
	assert.Equal(t, []string{"oslo", "rome"}, ds.Texts()["city"])
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")

	_, err := dataset.NewLoader(zap.NewNop()).Load(path)
	assert.ErrorIs(t, err, dataset.ErrUnsupportedFormat)
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")

	_, err := dataset.NewLoader(zap.NewNop()).Load(path)
	assert.ErrorIs(t, err, dataset.ErrInvalidData)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := dataset.NewLoader(zap.NewNop()).Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSchemaIsACopy(t *testing.T) {
	path := writeFile(t, "s.csv", "a\n1\n")
	ds, err := dataset.NewLoader(zap.NewNop()).Load(path)
	require.NoError(t, err)

	schema := ds.Schema()
	schema[0].Name = "mutated"
	assert.Equal(t, "a", ds.Schema()[0].Name)
}

func TestExtensions(t *testing.T) {
	exts := dataset.NewLoader(zap.NewNop()).Extensions()
	assert.Contains(t, exts, ".csv")
	assert.Contains(t, exts, ".xlsx")
	assert.Contains(t, exts, ".parquet")
}
