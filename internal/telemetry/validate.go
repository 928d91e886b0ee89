package telemetry

import (
	"math"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DropStats counts rows discarded by Validate, by the first reason that failed.
type DropStats struct {
	Input     int `json:"input"`
	Kept      int `json:"kept"`
	Driver    int `json:"driver"`
	Lap       int `json:"lap"`
	Duration  int `json:"duration"`
	Position  int `json:"position"`
	Timestamp int `json:"timestamp"`
}

// Dropped is the total number of discarded rows.
func (s DropStats) Dropped() int { return s.Input - s.Kept }

// Validate normalizes every row and keeps only those whose driver, lap,
// duration, position and timestamp resolve. Input order is preserved.
//
// Besides an unparseable duration, missing coordinates or an invalid
// timestamp, a row is also dropped for an empty driver name or a lap that is
// not an integer, and coordinate text that is not a number counts as
// missing. Each row is counted under the first reason it fails.
func Validate(rows []RawRow, opt ParseOptions) (*Dataset, DropStats) {
	stats := DropStats{Input: len(rows)}
	out := make([]LapRecord, 0, len(rows))
	for _, r := range rows {
		driver, ok := driverName(r.Driver)
		if !ok {
			stats.Driver++
			continue
		}
		lap, ok := lapNumber(r.Lap, opt)
		if !ok {
			stats.Lap++
			continue
		}
		dur, ok := Normalize(r.Duration)
		if !ok {
			stats.Duration++
			continue
		}
		lat, okLat := coordinate(r.Latitude, opt)
		lon, okLon := coordinate(r.Longitude, opt)
		if !okLat || !okLon {
			stats.Position++
			continue
		}
		ts, ok := timestamp(r.Timestamp, opt)
		if !ok {
			stats.Timestamp++
			continue
		}
		out = append(out, LapRecord{
			Driver:          driver,
			Lap:             lap,
			Duration:        dur,
			DurationSeconds: dur.Seconds(),
			Latitude:        lat,
			Longitude:       lon,
			Timestamp:       ts,
			Line:            r.Line,
		})
	}
	stats.Kept = len(out)
	return &Dataset{records: out}, stats
}

func driverName(c Cell) (string, bool) {
	switch v := c.(type) {
	case Text:
		s := strings.TrimSpace(string(v))
		return s, s != ""
	case Number:
		// numeric driver ids are kept as their text form
		return v.String(), true
	default:
		return "", false
	}
}

func lapNumber(c Cell, opt ParseOptions) (int, bool) {
	var f float64
	switch v := c.(type) {
	case Number:
		f = float64(v)
	case Text:
		x, ok := ParseNumber(string(v), opt)
		if !ok {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func coordinate(c Cell, opt ParseOptions) (float64, bool) {
	switch v := c.(type) {
	case Number:
		f := float64(v)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case Text:
		f, ok := ParseNumber(string(v), opt)
		return f, ok && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func timestamp(c Cell, opt ParseOptions) (time.Time, bool) {
	switch v := c.(type) {
	case DateTime:
		return time.Time(v), true
	case Text:
		return ParseTimestamp(string(v))
	case Number:
		t, err := excelize.ExcelDateToTime(float64(v), opt.Date1904)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
