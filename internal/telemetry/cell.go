package telemetry

import (
	"fmt"
	"time"
)

// Cell is one raw spreadsheet value. The set of variants is closed: only the
// types declared in this file implement it.
type Cell interface {
	isCell()
	// String renders the cell for diagnostics and sample tables.
	String() string
}

// Empty is a blank or missing cell.
type Empty struct{}

// Text is a string cell as typed by the user.
type Text string

// Number is a numeric cell without date or time formatting.
type Number float64

// Bool is a logical cell.
type Bool bool

// TimeOfDay is a clock value without a date, as produced by spreadsheets for
// time-formatted cells.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// Elapsed is a value that already is a duration (e.g. a cell formatted as [h]:mm:ss).
type Elapsed time.Duration

// DateTime is a calendar date with optional time.
type DateTime time.Time

// ErrorValue is a spreadsheet error such as #N/A or #DIV/0!.
type ErrorValue string

func (Empty) isCell()      {}
func (Text) isCell()       {}
func (Number) isCell()     {}
func (Bool) isCell()       {}
func (TimeOfDay) isCell()  {}
func (Elapsed) isCell()    {}
func (DateTime) isCell()   {}
func (ErrorValue) isCell() {}

func (Empty) String() string        { return "" }
func (c Text) String() string       { return string(c) }
func (c Number) String() string     { return fmt.Sprintf("%g", float64(c)) }
func (c Bool) String() string       { return fmt.Sprintf("%t", bool(c)) }
func (c Elapsed) String() string    { return time.Duration(c).String() }
func (c DateTime) String() string   { return time.Time(c).Format("2006-01-02 15:04:05") }
func (c ErrorValue) String() string { return string(c) }

func (c TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	if c.Nanosecond > 0 {
		s += fmt.Sprintf(".%06d", c.Nanosecond/1000)
	}
	return s
}

// TimeOfDayFromFraction converts a fraction of a day (the spreadsheet encoding
// of a time cell) into a TimeOfDay, rounded to microseconds. ok is false when
// the fraction is outside [0, 1).
func TimeOfDayFromFraction(frac float64) (TimeOfDay, bool) {
	if frac < 0 || frac >= 1 {
		return TimeOfDay{}, false
	}
	us := int64(frac*86400e6 + 0.5)
	if us >= 86400e6 {
		// rounding pushed us onto the next midnight
		us = 86400e6 - 1
	}
	d := time.Duration(us) * time.Microsecond
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	return TimeOfDay{Hour: h, Minute: m, Second: s, Nanosecond: int(d)}, true
}
