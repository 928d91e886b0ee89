package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

func rec(driver string, lap int, d time.Duration) telemetry.LapRecord {
	return telemetry.LapRecord{Driver: driver, Lap: lap, Duration: d, DurationSeconds: d.Seconds()}
}

func sample() (*telemetry.Dataset, telemetry.DropStats) {
	ds := telemetry.NewDataset([]telemetry.LapRecord{
		rec("A", 1, 60*time.Second),
		rec("B", 1, 65*time.Second),
		rec("A", 2, 59*time.Second),
		rec("B", 2, 58*time.Second+750*time.Millisecond),
	})
	return ds, telemetry.DropStats{Input: 1234, Kept: 4, Duration: 1229, Timestamp: 1}
}

func TestFormatClock(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                     "0:00:00",
		58*time.Second + 999*time.Millisecond: "0:00:58",
		119 * time.Second:                     "0:01:59",
		time.Hour + 2*time.Minute + 3*time.Second: "1:02:03",
		26 * time.Hour:   "26:00:00",
		-4 * time.Second: "-0:00:04",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatClock(in), in.String())
	}
}

func TestBuild(t *testing.T) {
	ds, stats := sample()
	r := Build("race.xlsx", race.Aggregate(ds, race.DefaultFilter(ds)), stats)

	assert.False(t, r.NoData)
	require.NotNil(t, r.BestLap)
	assert.Equal(t, BestLap{Driver: "B", Lap: 2, Duration: "0:00:58", DurationSeconds: 58.75}, *r.BestLap)

	wantTotals := []TotalRow{
		{Rank: 1, Driver: "A", Total: "0:01:59", TotalSeconds: 119, Gap: "0:00:00"},
		{Rank: 2, Driver: "B", Total: "0:02:03", TotalSeconds: 123.75, Gap: "0:00:04", GapSeconds: 4.75},
	}
	if diff := cmp.Diff(wantTotals, r.Totals); diff != "" {
		t.Fatalf("totals (-want +got):\n%s", diff)
	}
	assert.Equal(t, []MeanRow{
		{Driver: "A", Mean: "0:00:59", MeanSeconds: 59.5},
		{Driver: "B", Mean: "0:01:01", MeanSeconds: 61.875},
	}, r.Means)
	assert.Equal(t, []SeriesRow{
		{Lap: 1, DurationSeconds: 60, Driver: "A", Leader: true},
		{Lap: 1, DurationSeconds: 65, Driver: "B"},
		{Lap: 2, DurationSeconds: 59, Driver: "A"},
		{Lap: 2, DurationSeconds: 58.75, Driver: "B", Leader: true},
	}, r.Series)
	assert.Equal(t, []LapCountRow{{Driver: "A", Laps: 2}, {Driver: "B", Laps: 2}}, r.LapCounts)
}

func TestMarkdown(t *testing.T) {
	ds, stats := sample()
	md := Build("race.xlsx", race.Aggregate(ds, race.DefaultFilter(ds)), stats).Markdown()

	for _, want := range []string{
		"[RACE SUMMARY]", "File: race.xlsx", "Rows: 1,234 (kept 4, dropped 1,230)", "Drivers: A, B", "Laps: 1, 2",
		"[BEST LAP]\nB, lap 2: 0:00:58 (58.750s)",
		"[LAP TIMES]", "- lap 1: A 60.000s (leader)",
		"[AVERAGE LAP]", "- A: 0:00:59 (59.500s)",
		"[CLASSIFICATION]", "- 1st A: 0:01:59 (119.000s)\n", "- 2nd B: 0:02:03 (123.750s), +0:00:04",
		"[LAPS COMPLETED]", "- B: 2",
		"[NOTES]", "1,229 rows dropped: unparseable lap time", "1 row dropped: invalid timestamp",
	} {
		assert.Contains(t, md, want)
	}
	assert.NotContains(t, md, "missing driver")
}

func TestEmptyView(t *testing.T) {
	ds, _ := sample()
	r := Build("", race.Aggregate(ds, race.NewFilter(nil, race.ObservedLaps(ds))), telemetry.DropStats{Input: 4, Kept: 4})

	assert.True(t, r.NoData)
	assert.Nil(t, r.BestLap)
	md := r.Markdown()
	assert.Contains(t, md, "[BEST LAP]\nno data in current filter\n")
	assert.Contains(t, md, "Drivers: (none)")
	assert.NotContains(t, md, "[NOTES]")

	b, err := r.JSON()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, true, got["no_data"])
	assert.Nil(t, got["best_lap"])
	assert.Equal(t, []any{}, got["totals"])
	assert.Equal(t, []any{}, got["series"])
	assert.Equal(t, []any{}, got["drivers"])
}

func TestWriteXLSX(t *testing.T) {
	ds, stats := sample()
	r := Build("race.xlsx", race.Aggregate(ds, race.DefaultFilter(ds)), stats)

	var buf bytes.Buffer
	require.NoError(t, r.WriteXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetSummary, SheetLapTimes, SheetAverageLap, SheetClassification, SheetLapsCompleted}, f.GetSheetList())

	rows, err := f.GetRows(SheetClassification)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Rank", "Driver", "Total", "Seconds", "Gap"}, rows[0])
	assert.Equal(t, []string{"1", "A", "0:01:59", "119", "0:00:00"}, rows[1])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Best lap driver", "B"}, summary[4])

	laps, err := f.GetRows(SheetLapTimes)
	require.NoError(t, err)
	assert.Len(t, laps, 5)
	assert.True(t, strings.EqualFold(laps[1][3], "TRUE"), laps[1][3])
}

func TestWriteXLSXEmptyView(t *testing.T) {
	ds, stats := sample()
	r := Build("race.xlsx", race.Aggregate(ds, race.NewFilter([]string{"A"}, nil)), stats)

	var buf bytes.Buffer
	require.NoError(t, r.WriteXLSX(&buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetClassification)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
