package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

var header = []interface{}{"Piloto", "Volta", "Tempo", "Latitude", "Longitude", "Timestamp"}

func writeWorkbook(t *testing.T, build func(f *excelize.File)) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f)
	p := filepath.Join(t.TempDir(), "race.xlsx")
	if err := f.SaveAs(p); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return p
}

func lapsSheet(t *testing.T, f *excelize.File) {
	t.Helper()
	_, err := f.NewSheet("Laps")
	require.NoError(t, err)
	clock, err := f.NewStyle(&excelize.Style{NumFmt: 21})
	require.NoError(t, err)
	code := "[h]:mm:ss.000"
	elapsed, err := f.NewStyle(&excelize.Style{CustomNumFmt: &code})
	require.NoError(t, err)

	ts := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	require.NoError(t, f.SetSheetRow("Laps", "A1", &header))
	require.NoError(t, f.SetSheetRow("Laps", "A2", &[]interface{}{"A", 1, 62.5 / 86400, -23.55, -46.63, ts}))
	require.NoError(t, f.SetCellStyle("Laps", "C2", "C2", clock))
	require.NoError(t, f.SetSheetRow("Laps", "A3", &[]interface{}{"B", 1, 65.0 / 86400, -23.55, -46.63, ts.Add(time.Minute)}))
	require.NoError(t, f.SetCellStyle("Laps", "C3", "C3", elapsed))
	require.NoError(t, f.SetSheetRow("Laps", "A4", &[]interface{}{"A", 2, "00:00:59", "-23,55", "-46,63", "2024-03-10 14:02:00"}))
	require.NoError(t, f.SetSheetRow("Laps", "A5", &[]interface{}{"B", 2, "0:00:58", -23.55, -46.63, ts.Add(3 * time.Minute)}))
	// row 6 left blank
	require.NoError(t, f.SetSheetRow("Laps", "A7", &[]interface{}{"C", 1, "n/a", -23.55, -46.63, ts}))
}

func TestLoadXLSXTypesCells(t *testing.T) {
	p := writeWorkbook(t, func(f *excelize.File) { lapsSheet(t, f) })
	fh, err := os.Open(p)
	require.NoError(t, err)
	defer fh.Close()

	tbl, err := Load(p, fh, Options{SheetName: "Laps"})
	require.NoError(t, err)
	assert.Equal(t, "race.xlsx (sheet: Laps)", tbl.Name)
	require.Len(t, tbl.Rows, 5)
	assert.Equal(t, 2, tbl.Rows[0].Line)
	assert.Greater(t, tbl.Rows[4].Line, tbl.Rows[3].Line)

	assert.Equal(t, telemetry.TimeOfDay{Minute: 1, Second: 2, Nanosecond: 500_000_000}, tbl.Rows[0].Cells[2])
	assert.Equal(t, telemetry.Elapsed(65*time.Second), tbl.Rows[1].Cells[2])
	assert.Equal(t, telemetry.Text("00:00:59"), tbl.Rows[2].Cells[2])
	assert.Equal(t, telemetry.Text("A"), tbl.Rows[0].Cells[0])
	assert.Equal(t, telemetry.Number(1), tbl.Rows[0].Cells[1])
	assert.Equal(t, telemetry.Number(-23.55), tbl.Rows[0].Cells[3])
	assert.IsType(t, telemetry.DateTime{}, tbl.Rows[0].Cells[5])
}

func TestReadXLSX(t *testing.T) {
	p := writeWorkbook(t, func(f *excelize.File) { lapsSheet(t, f) })

	res, err := ReadFile(p, Options{SheetName: "Laps"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.DropStats{Input: 5, Kept: 4, Duration: 1}, res.Stats)

	recs := res.Dataset.Records()
	got := make([]float64, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.DurationSeconds)
	}
	if diff := cmp.Diff([]float64{62.5, 65, 59, 58}, got); diff != "" {
		t.Fatalf("durations (-want +got):\n%s", diff)
	}
	assert.InDelta(t, -23.55, recs[2].Latitude, 1e-9)
	assert.WithinDuration(t, time.Date(2024, 3, 10, 14, 1, 0, 0, time.UTC), recs[1].Timestamp, time.Second)
	assert.True(t, time.Date(2024, 3, 10, 14, 2, 0, 0, time.UTC).Equal(recs[2].Timestamp))
}

func TestReadXLSXUnzipLimit(t *testing.T) {
	p := writeWorkbook(t, func(f *excelize.File) { lapsSheet(t, f) })

	_, err := ReadFile(p, Options{SheetName: "Laps", MaxUnzipBytes: 1024})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkbookTooLarge), err.Error())

	res, err := ReadFile(p, Options{SheetName: "Laps", MaxUnzipBytes: 4 << 20})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Stats.Kept)
}

func TestReadXLSXSheetSelection(t *testing.T) {
	p := writeWorkbook(t, func(f *excelize.File) { lapsSheet(t, f) })

	// Sheet1 comes first and is empty, so the header check fails
	_, err := ReadFile(p, Options{})
	var se *SchemaError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Len(t, se.Missing, len(RequiredColumns))

	res, err := ReadFile(p, Options{SheetIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Dataset.Len())

	_, err = ReadFile(p, Options{SheetName: "Qualifying"})
	require.ErrorIs(t, err, ErrSheetNotFound)
	assert.Contains(t, err.Error(), "Sheet1, Laps")

	_, err = ReadFile(p, Options{SheetIndex: 3})
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestReadXLSXDate1904(t *testing.T) {
	p := writeWorkbook(t, func(f *excelize.File) {
		on := true
		require.NoError(t, f.SetWorkbookProps(&excelize.WorkbookPropsOptions{Date1904: &on}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
		require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"A", 1, "1:02.5", 1.5, 2.5, 45361.5}))
	})
	res, err := ReadFile(p, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Dataset.Len())
	want, err := excelize.ExcelDateToTime(45361.5, true)
	require.NoError(t, err)
	assert.True(t, want.Equal(res.Dataset.At(0).Timestamp))
	assert.Equal(t, 62.5, res.Dataset.At(0).DurationSeconds)
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "race.csv")
	content := "\ufeffPiloto;Volta;Tempo;Latitude;Longitude;Timestamp\n" +
		"A;1;00:01:00;-23,5505;-46,6333;2024-03-10 14:00:00\n" +
		"\n" +
		"B;1;00:01:05;-23,5505;-46,6333;2024-03-10 14:01:00\n" +
		"B;2;;-23,5505;-46,6333;2024-03-10 14:02:00\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := ReadFile(p, Options{})
	require.NoError(t, err)
	assert.Equal(t, "race.csv", res.Name)
	assert.Equal(t, telemetry.DropStats{Input: 3, Kept: 2, Duration: 1}, res.Stats)
	assert.InDelta(t, -46.6333, res.Dataset.At(1).Longitude, 1e-9)
	assert.Equal(t, 4, res.Dataset.At(1).Line)
}

func TestReadCSVExplicitDelimiter(t *testing.T) {
	src := "Piloto\tVolta\tTempo\tLatitude\tLongitude\tTimestamp\nA\t1\t1:00.25\t1.5\t2.5\t2024-03-10 14:00:00\n"
	res, err := Read("laps.txt.tsv", strings.NewReader(src), Options{Delimiter: '\t'})
	require.NoError(t, err)
	require.Equal(t, 1, res.Dataset.Len())
	assert.Equal(t, 60.25, res.Dataset.At(0).DurationSeconds)
}

func TestSchemaError(t *testing.T) {
	src := "Piloto,Volta,Longitude,Timestamp\nA,1,2.5,2024-03-10\n"
	_, err := Read("race.csv", strings.NewReader(src), Options{})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Latitude", "Tempo"}, se.Missing)
	assert.Equal(t, "missing required columns: Latitude, Tempo", se.Error())
}

func TestSchemaMatchIgnoresCaseAndSpaces(t *testing.T) {
	src := " piloto ,VOLTA,tempo,latitude,LONGITUDE,timestamp\n"
	res, err := Read("race.csv", strings.NewReader(src), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Dataset.Len())
}

func TestEmptyFileIsSchemaError(t *testing.T) {
	_, err := Read("race.csv", strings.NewReader(""), Options{})
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Missing, len(RequiredColumns))
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Read("race.xls", strings.NewReader("x"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = ReadFile(filepath.Join(t.TempDir(), "race.json"), Options{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestClassifyFormat(t *testing.T) {
	cases := map[string]formatKind{
		"[h]:mm:ss":         formatElapsed,
		"[mm]:ss.000":       formatElapsed,
		"hh:mm:ss.000":      formatTime,
		"mm:ss.0":           formatTime,
		"dd/mm/yyyy hh:mm":  formatDate,
		"yyyy-mm-dd":        formatDate,
		"[$-416]dd/mm/yyyy": formatDate,
		"0.000":             formatNumber,
		"#,##0.00;[red]-0":  formatNumber,
		`0.0 "days"`:        formatNumber,
		"[red]0.00":         formatNumber,
		"general":           formatNumber,
	}
	for code, want := range cases {
		assert.Equal(t, want, classifyFormat(code), code)
	}
}

func TestTypedNumber(t *testing.T) {
	assert.Equal(t, telemetry.TimeOfDay{Hour: 12}, typedNumber(0.5, formatTime, false))
	assert.IsType(t, telemetry.DateTime{}, typedNumber(1.5, formatTime, false))
	assert.Equal(t, telemetry.Elapsed(36*time.Hour), typedNumber(1.5, formatElapsed, false))
	assert.Equal(t, telemetry.Number(-0.5), typedNumber(-0.5, formatElapsed, false))
	assert.Equal(t, telemetry.Number(42), typedNumber(42, formatNumber, false))
}
