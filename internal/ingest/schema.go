package ingest

import (
	"fmt"
	"slices"
	"strings"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// Required column names. Matching ignores case and surrounding spaces.
const (
	ColDriver    = "Piloto"
	ColLap       = "Volta"
	ColDuration  = "Tempo"
	ColLatitude  = "Latitude"
	ColLongitude = "Longitude"
	ColTimestamp = "Timestamp"
)

// RequiredColumns lists every column a telemetry file must carry.
var RequiredColumns = []string{ColDriver, ColLap, ColDuration, ColLatitude, ColLongitude, ColTimestamp}

// SchemaError reports required columns absent from the header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Columns maps each required column to its index in the header.
func (t *Table) Columns() (map[string]int, error) {
	seen := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		k := strings.ToLower(strings.TrimSpace(h))
		if _, dup := seen[k]; !dup {
			seen[k] = i
		}
	}
	cols := make(map[string]int, len(RequiredColumns))
	var missing []string
	for _, c := range RequiredColumns {
		i, ok := seen[strings.ToLower(c)]
		if !ok {
			missing = append(missing, c)
			continue
		}
		cols[c] = i
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &SchemaError{Missing: missing}
	}
	return cols, nil
}

// RawRows picks the required columns out of every row.
func (t *Table) RawRows() ([]telemetry.RawRow, error) {
	cols, err := t.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]telemetry.RawRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, telemetry.RawRow{
			Line:      r.Line,
			Driver:    cellAt(r.Cells, cols[ColDriver]),
			Lap:       cellAt(r.Cells, cols[ColLap]),
			Duration:  cellAt(r.Cells, cols[ColDuration]),
			Latitude:  cellAt(r.Cells, cols[ColLatitude]),
			Longitude: cellAt(r.Cells, cols[ColLongitude]),
			Timestamp: cellAt(r.Cells, cols[ColTimestamp]),
		})
	}
	return out, nil
}

func cellAt(cells []telemetry.Cell, i int) telemetry.Cell {
	if i < len(cells) && cells[i] != nil {
		return cells[i]
	}
	return telemetry.Empty{}
}

func blank(cells []telemetry.Cell) bool {
	for _, c := range cells {
		if _, ok := c.(telemetry.Empty); !ok && c != nil {
			return false
		}
	}
	return true
}
