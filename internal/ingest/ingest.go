package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// ErrUnsupportedFormat is returned when no loader accepts the file name.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options controls how a telemetry file is read.
type Options struct {
	// SheetName selects an XLSX sheet by name. It wins over SheetIndex.
	SheetName string
	// SheetIndex is the 1-based XLSX sheet position; 0 means the first sheet.
	SheetIndex int
	// Delimiter for CSV. If 0, sniffed from the header line.
	Delimiter rune
	// DecimalSeparator for text numbers. If 0, auto-detect per value.
	DecimalSeparator rune
	// MaxUnzipBytes caps the uncompressed size of an XLSX package.
	// If 0, excelize's own limit applies.
	MaxUnzipBytes int64
}

// Row is one data row of a Table.
type Row struct {
	// Line is the 1-based position in the source, the header being line 1.
	Line  int
	Cells []telemetry.Cell
}

// Table is a loaded sheet before schema mapping.
type Table struct {
	Name     string
	Header   []string
	Rows     []Row
	Date1904 bool
}

// Loader reads one tabular file format.
type Loader interface {
	CanLoad(filename string) bool
	Load(r io.Reader, opt Options) (*Table, error)
}

var registry []Loader

// Register adds a loader implementation to the registry.
func Register(l Loader) {
	registry = append(registry, l)
}

func init() {
	Register(csvLoader{})
	Register(xlsxLoader{})
}

// LoaderFor picks the loader for a file name by extension.
func LoaderFor(filename string) (Loader, error) {
	for _, l := range registry {
		if l.CanLoad(filename) {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
}

// Load reads a table from r, choosing the loader by name.
func Load(name string, r io.Reader, opt Options) (*Table, error) {
	l, err := LoaderFor(name)
	if err != nil {
		return nil, err
	}
	t, err := l.Load(r, opt)
	if err != nil {
		return nil, err
	}
	if t.Name == "" {
		t.Name = filepath.Base(name)
	} else {
		t.Name = fmt.Sprintf("%s (sheet: %s)", filepath.Base(name), t.Name)
	}
	log.Logger.Debug("table loaded",
		zap.String("name", t.Name),
		zap.Int("columns", len(t.Header)),
		zap.Int("rows", len(t.Rows)))
	return t, nil
}

// Result is a validated upload.
type Result struct {
	Name    string
	Dataset *telemetry.Dataset
	Stats   telemetry.DropStats
}

// Read loads, maps and validates a telemetry file. A missing required column
// is reported as a *SchemaError before any row is looked at.
func Read(name string, r io.Reader, opt Options) (*Result, error) {
	t, err := Load(name, r, opt)
	if err != nil {
		return nil, err
	}
	rows, err := t.RawRows()
	if err != nil {
		return nil, err
	}
	ds, stats := telemetry.Validate(rows, telemetry.ParseOptions{
		DecimalSeparator: opt.DecimalSeparator,
		Date1904:         t.Date1904,
	})
	log.Logger.Debug("rows validated",
		zap.String("name", t.Name),
		zap.Int("kept", stats.Kept),
		zap.Int("dropped", stats.Dropped()))
	return &Result{Name: t.Name, Dataset: ds, Stats: stats}, nil
}

// ReadFile is Read for a file on disk.
func ReadFile(path string, opt Options) (*Result, error) {
	if _, err := LoaderFor(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return Read(path, f, opt)
}
