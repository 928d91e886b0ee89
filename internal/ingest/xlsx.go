package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/KaramelBytes/lapboard-cli/internal/log"
	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// ErrSheetNotFound is returned when the requested sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// ErrWorkbookTooLarge is returned when a workbook unpacks beyond Options.MaxUnzipBytes.
var ErrWorkbookTooLarge = errors.New("workbook too large")

type xlsxLoader struct{}

func (xlsxLoader) CanLoad(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".xlsx") || strings.HasSuffix(name, ".xlsm")
}

// Load reads one sheet. Numeric cells are typed by their number format so
// time-formatted lap times arrive as TimeOfDay and [h]:mm:ss ones as Elapsed.
func (xlsxLoader) Load(r io.Reader, opt Options) (*Table, error) {
	f, err := excelize.OpenReader(r, unzipLimits(opt.MaxUnzipBytes)...)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unzip size exceeds") {
			return nil, fmt.Errorf("%w: %v", ErrWorkbookTooLarge, err)
		}
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetList(), opt)
	if err != nil {
		return nil, err
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook props: %w", err)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	t := &Table{Name: sheet, Date1904: props.Date1904 != nil && *props.Date1904}
	ty := &cellTyper{f: f, sheet: sheet, date1904: t.Date1904, formats: map[int]formatKind{}}
	for i, raw := range rows {
		line := i + 1
		if t.Header == nil {
			if len(lo.Compact(raw)) == 0 {
				continue
			}
			t.Header = raw
			continue
		}
		cells := make([]telemetry.Cell, len(raw))
		for col, v := range raw {
			c, err := ty.cell(col+1, line, v)
			if err != nil {
				return nil, err
			}
			cells[col] = c
		}
		if blank(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Line: line, Cells: cells})
	}
	log.Logger.Debug("xlsx sheet read",
		zap.String("sheet", sheet),
		zap.Bool("date1904", t.Date1904),
		zap.Int("rows", len(t.Rows)))
	return t, nil
}

func unzipLimits(limit int64) []excelize.Options {
	if limit <= 0 {
		return nil
	}
	return []excelize.Options{{
		UnzipSizeLimit:    limit,
		UnzipXMLSizeLimit: min(limit, excelize.StreamChunkSize),
	}}
}

func pickSheet(sheets []string, opt Options) (string, error) {
	if opt.SheetName != "" {
		if !lo.Contains(sheets, opt.SheetName) {
			return "", fmt.Errorf("%w: %q (available: %s)", ErrSheetNotFound, opt.SheetName, strings.Join(sheets, ", "))
		}
		return opt.SheetName, nil
	}
	idx := opt.SheetIndex
	if idx <= 0 {
		idx = 1
	}
	if idx > len(sheets) {
		return "", fmt.Errorf("%w: index %d out of range (workbook has %d sheets: %s)", ErrSheetNotFound, idx, len(sheets), strings.Join(sheets, ", "))
	}
	return sheets[idx-1], nil
}

type formatKind int

const (
	formatNumber formatKind = iota
	formatDate
	formatTime
	formatElapsed
)

// cellTyper turns raw cell values into Cells, caching number format lookups by style.
type cellTyper struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	formats  map[int]formatKind
}

func (ty *cellTyper) cell(col, row int, raw string) (telemetry.Cell, error) {
	if raw == "" {
		return telemetry.Empty{}, nil
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	ct, err := ty.f.GetCellType(ty.sheet, axis)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", axis, err)
	}
	switch ct {
	case excelize.CellTypeBool:
		return telemetry.Bool(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeError:
		return telemetry.ErrorValue(raw), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		if strings.TrimSpace(raw) == "" {
			return telemetry.Empty{}, nil
		}
		return telemetry.Text(raw), nil
	case excelize.CellTypeDate:
		if ts, ok := telemetry.ParseTimestamp(raw); ok {
			return telemetry.DateTime(ts), nil
		}
		return telemetry.Text(raw), nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return telemetry.Text(raw), nil
	}
	kind, err := ty.format(axis)
	if err != nil {
		return nil, err
	}
	return typedNumber(v, kind, ty.date1904), nil
}

func (ty *cellTyper) format(axis string) (formatKind, error) {
	idx, err := ty.f.GetCellStyle(ty.sheet, axis)
	if err != nil {
		return formatNumber, fmt.Errorf("cell %s style: %w", axis, err)
	}
	if k, ok := ty.formats[idx]; ok {
		return k, nil
	}
	k := formatNumber
	if idx > 0 {
		st, err := ty.f.GetStyle(idx)
		if err != nil {
			return formatNumber, fmt.Errorf("style %d: %w", idx, err)
		}
		k = classifyStyle(st)
	}
	ty.formats[idx] = k
	return k, nil
}

func typedNumber(v float64, kind formatKind, date1904 bool) telemetry.Cell {
	switch kind {
	case formatElapsed:
		if v >= 0 && v < float64(math.MaxInt64)/86400e9 {
			return telemetry.Elapsed(time.Duration(math.Round(v*86400e6)) * time.Microsecond)
		}
	case formatTime:
		if tod, ok := telemetry.TimeOfDayFromFraction(v); ok {
			return tod
		}
		fallthrough
	case formatDate:
		if ts, err := excelize.ExcelDateToTime(v, date1904); err == nil {
			return telemetry.DateTime(ts)
		}
	}
	return telemetry.Number(v)
}

var (
	builtinDate    = map[int]bool{14: true, 15: true, 16: true, 17: true, 22: true}
	builtinTime    = map[int]bool{18: true, 19: true, 20: true, 21: true, 45: true, 47: true}
	builtinElapsed = 46

	fmtLiteral = regexp.MustCompile(`"[^"]*"|\\.`)
	fmtElapsed = regexp.MustCompile(`\[(h+|m+|s+)\]`)
	fmtBracket = regexp.MustCompile(`\[[^\]]*\]`)
)

func classifyStyle(st *excelize.Style) formatKind {
	if st.CustomNumFmt != nil && *st.CustomNumFmt != "" {
		return classifyFormat(*st.CustomNumFmt)
	}
	switch id := st.NumFmt; {
	case id == builtinElapsed:
		return formatElapsed
	case builtinTime[id]:
		return formatTime
	case builtinDate[id], id >= 27 && id <= 36, id >= 50 && id <= 58:
		return formatDate
	}
	return formatNumber
}

// classifyFormat inspects the first section of a custom number format code.
func classifyFormat(code string) formatKind {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	code = fmtLiteral.ReplaceAllString(code, "")
	if fmtElapsed.MatchString(code) {
		return formatElapsed
	}
	code = fmtBracket.ReplaceAllString(code, "")
	switch {
	case strings.ContainsAny(code, "yd"):
		return formatDate
	case strings.ContainsAny(code, "hs"):
		return formatTime
	}
	return formatNumber
}
