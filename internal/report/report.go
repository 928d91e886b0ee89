package report

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/KaramelBytes/lapboard-cli/internal/race"
	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
	"github.com/KaramelBytes/lapboard-cli/internal/utils"
)

// BestLap is the fastest single lap of the view.
type BestLap struct {
	Driver          string  `json:"driver"`
	Lap             int     `json:"lap"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// SeriesRow is one point of the lap time chart.
type SeriesRow struct {
	Lap             int     `json:"lap"`
	DurationSeconds float64 `json:"duration_seconds"`
	Driver          string  `json:"driver"`
	Leader          bool    `json:"leader"`
}

// MeanRow is one line of the average lap table.
type MeanRow struct {
	Driver      string  `json:"driver"`
	Mean        string  `json:"mean"`
	MeanSeconds float64 `json:"mean_seconds"`
}

// TotalRow is one line of the classification.
type TotalRow struct {
	Rank         int     `json:"rank"`
	Driver       string  `json:"driver"`
	Total        string  `json:"total"`
	TotalSeconds float64 `json:"total_seconds"`
	Gap          string  `json:"gap"`
	GapSeconds   float64 `json:"gap_seconds"`
}

// LapCountRow is one line of the laps completed table.
type LapCountRow struct {
	Driver string `json:"driver"`
	Laps   int    `json:"laps"`
}

// Report is everything a front end needs to render one filtered view.
type Report struct {
	Name      string              `json:"name,omitempty"`
	Drivers   []string            `json:"drivers"`
	Laps      []int               `json:"laps"`
	Rows      telemetry.DropStats `json:"rows"`
	NoData    bool                `json:"no_data"`
	BestLap   *BestLap            `json:"best_lap"`
	Series    []SeriesRow         `json:"series"`
	Means     []MeanRow           `json:"means"`
	Totals    []TotalRow          `json:"totals"`
	LapCounts []LapCountRow       `json:"lap_counts"`
}

// Build projects an analysis into presentation tables. Durations are
// formatted with FormatClock; the *Seconds fields keep full precision.
func Build(name string, a *race.Analysis, stats telemetry.DropStats) *Report {
	r := &Report{
		Name:    name,
		Drivers: a.Filter.Drivers(),
		Laps:    a.Filter.Laps(),
		Rows:    stats,
		NoData:  a.Empty(),
	}
	if best, err := a.BestLap(); err == nil {
		r.BestLap = &BestLap{
			Driver:          best.Driver,
			Lap:             best.Lap,
			Duration:        FormatClock(best.Duration),
			DurationSeconds: best.DurationSeconds,
		}
	}
	r.Series = lo.Map(a.Series(), func(p race.SeriesPoint, _ int) SeriesRow {
		return SeriesRow{Lap: p.Lap, DurationSeconds: p.DurationSeconds, Driver: p.Driver, Leader: p.Leader}
	})
	r.Means = lo.Map(a.Means, func(m race.DriverMean, _ int) MeanRow {
		return MeanRow{Driver: m.Driver, Mean: FormatClock(m.Mean), MeanSeconds: m.MeanSeconds}
	})
	r.Totals = lo.Map(a.Totals, func(t race.DriverTotal, _ int) TotalRow {
		return TotalRow{
			Rank:         t.Rank,
			Driver:       t.Driver,
			Total:        FormatClock(t.Total),
			TotalSeconds: t.TotalSeconds,
			Gap:          FormatClock(t.Gap),
			GapSeconds:   t.Gap.Seconds(),
		}
	})
	r.LapCounts = lo.Map(a.LapCounts, func(c race.DriverLapCount, _ int) LapCountRow {
		return LapCountRow{Driver: c.Driver, Laps: c.Laps}
	})
	return r
}

// FormatClock renders d as H:MM:SS, dropping the sub-second part.
func FormatClock(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	out := fmt.Sprintf("%d:%02d:%02d", h, m, s)
	if neg {
		out = "-" + out
	}
	return out
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return utils.PrettyJSON(r)
}
