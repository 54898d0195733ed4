package datasets

import (
	"bytes"
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/measurements.csv
var measurementsCSV []byte

func loadTestTable(t *testing.T, name string) *Table {
	t.Helper()
	table, err := Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("loading %s: %v", name, err)
	}
	return table
}

func assertMeasurements(t *testing.T, table *Table) {
	t.Helper()
	assert.Equal(t, []string{"specimen", "mass", "velocity"}, table.Header())
	assert.Equal(t, "specimen", table.LabelName())
	assert.Equal(t, []string{"mass", "velocity"}, table.FeatureNames())
	assert.Equal(t, 2, table.FeatureCount())
	assert.Equal(t, 3, table.Rows())
	assert.Equal(t, []string{"A", "1.0", "2.0"}, table.Row(0))
	assert.Equal(t, []string{"C", "5.0", "6.0"}, table.Row(2))
}

func TestLoad(t *testing.T) {
	assertMeasurements(t, loadTestTable(t, "measurements.csv"))
}

func TestLoadGzip(t *testing.T) {
	assertMeasurements(t, loadTestTable(t, "measurements.csv.gz"))
}

func TestLoadXz(t *testing.T) {
	assertMeasurements(t, loadTestTable(t, "measurements.csv.xz"))
}

func TestReadTableMatchesLoad(t *testing.T) {
	table, err := ReadTable(bytes.NewReader(measurementsCSV), "embedded")
	require.NoError(t, err)
	assertMeasurements(t, table)
	assert.Equal(t, "embedded", table.Path())
}

func TestLoadMissingResource(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "no_such_file.csv"))
	require.Error(t, err)
	var loadErr *ResourceLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, loadErr.Path, "no_such_file.csv")
}

func TestLoadRaggedRows(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "ragged.csv"))
	require.Error(t, err)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 3, parseErr.Row)
}

func TestLoadHeaderOnly(t *testing.T) {
	table := loadTestTable(t, "header_only.csv")
	assert.Equal(t, 0, table.Rows())
	assert.Equal(t, 2, table.FeatureCount())
}

func TestReadTableEmptyContent(t *testing.T) {
	_, err := ReadTable(strings.NewReader(""), "empty")
	require.Error(t, err)
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Error(), "missing header row")
}

func TestReadTableQuotedCells(t *testing.T) {
	table, err := ReadTable(strings.NewReader("label,x\n\"specimen, one\",1.5\n"), "quoted")
	require.NoError(t, err)
	assert.Equal(t, []string{"specimen, one", "1.5"}, table.Row(0))
}

func TestLoadCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.csv.gz")
	require.NoError(t, os.WriteFile(path, []byte("this is not gzip data"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	var loadErr *ResourceLoadError
	assert.True(t, errors.As(err, &loadErr))
}
