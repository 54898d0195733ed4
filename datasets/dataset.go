package datasets

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/rowcast/rowcast/util/fileutil"
)

// Table is a parsed tabular dataset. The first row of the resource is the
// header, column 0 of every data row is a label and columns 1..N hold the
// feature values as text. All rows have the same number of cells.
type Table struct {
	header  []string
	records [][]string
	path    string
}

// ResourceLoadError reports a dataset resource that could not be opened or
// read.
type ResourceLoadError struct {
	Path string
	Err  error
}

func (e *ResourceLoadError) Error() string {
	return fmt.Sprintf("reading dataset %s: %s", e.Path, e.Err)
}

func (e *ResourceLoadError) Unwrap() error {
	return e.Err
}

// ParseError reports dataset content that is not a well formed table. Row is
// the 1-based line of the resource as reported by the reader, or 0 when the
// resource as a whole is malformed.
type ParseError struct {
	Path string
	Row  int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parsing dataset %s at line %d: %s", e.Path, e.Row, e.Err)
	}
	return fmt.Sprintf("parsing dataset %s: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads the table at path. Resources ending in .gz or .xz are
// decompressed on the fly. The path may be local or use any URL scheme the
// file system supports, such as s3://.
func Load(path string) (table *Table, err error) {
	file, openErr := fileutil.OpenFile(path)
	if openErr != nil {
		return nil, &ResourceLoadError{Path: path, Err: openErr}
	}
	defer func(file io.Closer) {
		err = errors.Join(err, fileutil.CloseFile(file))
	}(file)

	reader, decodeErr := decompress(path, file)
	if decodeErr != nil {
		return nil, &ResourceLoadError{Path: path, Err: decodeErr}
	}
	return ReadTable(reader, path)
}

// ReadTable parses CSV content that is already open. The path is only used
// in error messages.
func ReadTable(r io.Reader, path string) (*Table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		parseErr := &ParseError{Path: path, Err: err}
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			parseErr.Row = csvErr.Line
			parseErr.Err = csvErr.Err
		}
		return nil, parseErr
	}
	if len(records) == 0 {
		return nil, &ParseError{Path: path, Err: errors.New("missing header row")}
	}
	return &Table{
		header:  records[0],
		records: records[1:],
		path:    path,
	}, nil
}

// decompress wraps the reader according to the resource extension.
func decompress(path string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return gzip.NewReader(r)
	case ".xz":
		return xz.NewReader(r)
	default:
		return r, nil
	}
}

// Path returns the resource the table was loaded from.
func (t *Table) Path() string {
	return t.path
}

// Header returns a copy of the header row.
func (t *Table) Header() []string {
	header := make([]string, len(t.header))
	copy(header, t.header)
	return header
}

// LabelName returns the header name of the label column.
func (t *Table) LabelName() string {
	if len(t.header) == 0 {
		return ""
	}
	return t.header[0]
}

// FeatureNames returns the header names of the feature columns.
func (t *Table) FeatureNames() []string {
	if len(t.header) < 2 {
		return nil
	}
	names := make([]string, len(t.header)-1)
	copy(names, t.header[1:])
	return names
}

// FeatureCount returns the number of feature columns.
func (t *Table) FeatureCount() int {
	if len(t.header) == 0 {
		return 0
	}
	return len(t.header) - 1
}

// Rows returns the number of data rows.
func (t *Table) Rows() int {
	return len(t.records)
}

// Row returns the cells of data row i. The returned slice must not be
// modified.
func (t *Table) Row(i int) []string {
	return t.records[i]
}
