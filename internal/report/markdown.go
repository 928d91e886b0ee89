package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/KaramelBytes/lapboard-cli/internal/race"
)

// Markdown renders a compact plain-text report.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[RACE SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %s (kept %s, dropped %s)\n",
		humanize.Comma(int64(r.Rows.Input)), humanize.Comma(int64(r.Rows.Kept)), humanize.Comma(int64(r.Rows.Dropped()))))
	b.WriteString(fmt.Sprintf("Drivers: %s\n", listOrNone(r.Drivers)))
	b.WriteString(fmt.Sprintf("Laps: %s\n", listOrNone(lo.Map(r.Laps, func(l int, _ int) string { return fmt.Sprint(l) }))))

	b.WriteString("\n[BEST LAP]\n")
	if r.BestLap == nil {
		b.WriteString(race.ErrNoData.Error() + "\n")
	} else {
		b.WriteString(fmt.Sprintf("%s, lap %d: %s (%.3fs)\n", r.BestLap.Driver, r.BestLap.Lap, r.BestLap.Duration, r.BestLap.DurationSeconds))
	}

	b.WriteString("\n[LAP TIMES]\n")
	for _, p := range r.Series {
		b.WriteString(fmt.Sprintf("- lap %d: %s %.3fs", p.Lap, safeName(p.Driver), p.DurationSeconds))
		if p.Leader {
			b.WriteString(" (leader)")
		}
		b.WriteString("\n")
	}
	emptyLine(&b, len(r.Series))

	b.WriteString("\n[AVERAGE LAP]\n")
	for _, m := range r.Means {
		b.WriteString(fmt.Sprintf("- %s: %s (%.3fs)\n", safeName(m.Driver), m.Mean, m.MeanSeconds))
	}
	emptyLine(&b, len(r.Means))

	b.WriteString("\n[CLASSIFICATION]\n")
	for _, t := range r.Totals {
		b.WriteString(fmt.Sprintf("- %s %s: %s (%.3fs)", humanize.Ordinal(t.Rank), safeName(t.Driver), t.Total, t.TotalSeconds))
		if t.Rank > 1 {
			b.WriteString(fmt.Sprintf(", +%s", t.Gap))
		}
		b.WriteString("\n")
	}
	emptyLine(&b, len(r.Totals))

	b.WriteString("\n[LAPS COMPLETED]\n")
	for _, c := range r.LapCounts {
		b.WriteString(fmt.Sprintf("- %s: %d\n", safeName(c.Driver), c.Laps))
	}
	emptyLine(&b, len(r.LapCounts))

	if notes := r.notes(); len(notes) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, n := range notes {
			b.WriteString("- " + n + "\n")
		}
	}
	return b.String()
}

func (r *Report) notes() []string {
	var out []string
	s := r.Rows
	for _, d := range []struct {
		n      int
		reason string
	}{
		{s.Driver, "missing driver"},
		{s.Lap, "invalid lap number"},
		{s.Duration, "unparseable lap time"},
		{s.Position, "missing latitude/longitude"},
		{s.Timestamp, "invalid timestamp"},
	} {
		if d.n > 0 {
			out = append(out, fmt.Sprintf("%s dropped: %s", rowsWord(d.n), d.reason))
		}
	}
	return out
}

func rowsWord(n int) string {
	if n == 1 {
		return "1 row"
	}
	return humanize.Comma(int64(n)) + " rows"
}

func emptyLine(b *strings.Builder, n int) {
	if n == 0 {
		b.WriteString("(none)\n")
	}
}

func listOrNone(s []string) string {
	if len(s) == 0 {
		return "(none)"
	}
	return strings.Join(lo.Map(s, func(v string, _ int) string { return safeName(v) }), ", ")
}

func safeName(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ") }
