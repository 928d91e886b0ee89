package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook.
const (
	SheetSummary        = "Summary"
	SheetLapTimes       = "Lap times"
	SheetAverageLap     = "Average lap"
	SheetClassification = "Classification"
	SheetLapsCompleted  = "Laps completed"
)

// WriteXLSX writes the report as a workbook with one sheet per table.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"d9d9d9"}},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	leaderStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"3cb03a"}},
	})
	if err != nil {
		return fmt.Errorf("leader style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}
	summary := [][]interface{}{
		{"File", r.Name},
		{"Rows read", r.Rows.Input},
		{"Rows kept", r.Rows.Kept},
		{"Rows dropped", r.Rows.Dropped()},
	}
	if r.BestLap != nil {
		summary = append(summary,
			[]interface{}{"Best lap driver", r.BestLap.Driver},
			[]interface{}{"Best lap", r.BestLap.Lap},
			[]interface{}{"Best lap time", r.BestLap.Duration},
			[]interface{}{"Best lap seconds", r.BestLap.DurationSeconds},
		)
	} else {
		summary = append(summary, []interface{}{"Best lap", "no data in current filter"})
	}
	if err := writeTable(f, SheetSummary, nil, summary, headerStyle); err != nil {
		return err
	}

	series := make([][]interface{}, 0, len(r.Series))
	var leaders []int
	for i, p := range r.Series {
		series = append(series, []interface{}{p.Lap, p.Driver, p.DurationSeconds, p.Leader})
		if p.Leader {
			leaders = append(leaders, i+2)
		}
	}
	if err := newTable(f, SheetLapTimes, []interface{}{"Lap", "Driver", "Seconds", "Leader"}, series, headerStyle); err != nil {
		return err
	}
	for _, row := range leaders {
		if err := f.SetCellStyle(SheetLapTimes, fmt.Sprintf("A%d", row), fmt.Sprintf("D%d", row), leaderStyle); err != nil {
			return err
		}
	}

	means := make([][]interface{}, 0, len(r.Means))
	for _, m := range r.Means {
		means = append(means, []interface{}{m.Driver, m.Mean, m.MeanSeconds})
	}
	if err := newTable(f, SheetAverageLap, []interface{}{"Driver", "Mean", "Seconds"}, means, headerStyle); err != nil {
		return err
	}

	totals := make([][]interface{}, 0, len(r.Totals))
	for _, t := range r.Totals {
		totals = append(totals, []interface{}{t.Rank, t.Driver, t.Total, t.TotalSeconds, t.Gap})
	}
	if err := newTable(f, SheetClassification, []interface{}{"Rank", "Driver", "Total", "Seconds", "Gap"}, totals, headerStyle); err != nil {
		return err
	}

	counts := make([][]interface{}, 0, len(r.LapCounts))
	for _, c := range r.LapCounts {
		counts = append(counts, []interface{}{c.Driver, c.Laps})
	}
	if err := newTable(f, SheetLapsCompleted, []interface{}{"Driver", "Laps"}, counts, headerStyle); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func newTable(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet %q: %w", sheet, err)
	}
	return writeTable(f, sheet, header, rows, headerStyle)
}

// writeTable writes an optional styled header row followed by rows.
func writeTable(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	line := 1
	if header != nil {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
		line++
	}
	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %q row %d: %w", sheet, line, err)
		}
		line++
	}
	return nil
}
