package telemetry

import (
	"slices"
	"time"
)

// RawRow is one input row with the six required columns picked out.
type RawRow struct {
	// Line is the 1-based row number in the source sheet (header is line 1).
	Line      int
	Driver    Cell
	Lap       Cell
	Duration  Cell
	Latitude  Cell
	Longitude Cell
	Timestamp Cell
}

// LapRecord is one validated lap observation.
type LapRecord struct {
	Driver          string        `json:"driver"`
	Lap             int           `json:"lap"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"duration_seconds"`
	Latitude        float64       `json:"latitude"`
	Longitude       float64       `json:"longitude"`
	Timestamp       time.Time     `json:"timestamp"`
	Line            int           `json:"line"`
}

// Dataset is the ordered, read-only set of records that survived validation.
type Dataset struct {
	records []LapRecord
}

// NewDataset wraps already validated records. The slice is copied.
func NewDataset(records []LapRecord) *Dataset {
	return &Dataset{records: slices.Clone(records)}
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// At returns the i-th record in input order.
func (d *Dataset) At(i int) LapRecord { return d.records[i] }

// Records returns a copy of all records in input order.
func (d *Dataset) Records() []LapRecord {
	if d == nil {
		return nil
	}
	return slices.Clone(d.records)
}
