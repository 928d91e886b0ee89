package race

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// ErrNoData is returned when the filtered view has no rows.
var ErrNoData = errors.New("no data in current filter")

// LeaderKey identifies a (lap, driver) pair.
type LeaderKey struct {
	Lap    int
	Driver string
}

// DriverMean is the average lap time of one driver.
type DriverMean struct {
	Driver      string
	Mean        time.Duration
	MeanSeconds float64
}

// DriverTotal is one line of the classification by cumulative time.
type DriverTotal struct {
	Rank         int
	Driver       string
	Total        time.Duration
	TotalSeconds float64
	// Gap is the difference to the rank 1 total.
	Gap time.Duration
}

// DriverLapCount is the number of distinct laps a driver completed.
type DriverLapCount struct {
	Driver string
	Laps   int
}

// SeriesPoint is one plotted lap time.
type SeriesPoint struct {
	Lap             int
	Driver          string
	Duration        time.Duration
	DurationSeconds float64
	Leader          bool
}

// Analysis holds the aggregates of one filtered view.
type Analysis struct {
	Filter    Filter
	View      []telemetry.LapRecord
	Leaders   map[LeaderKey]struct{}
	Means     []DriverMean
	Totals    []DriverTotal
	LapCounts []DriverLapCount

	best int
}

// Empty reports whether the filtered view has no rows.
func (a *Analysis) Empty() bool { return len(a.View) == 0 }

// BestLap returns the fastest record of the view, or ErrNoData.
// When several records share the minimum, the first one in input order wins.
func (a *Analysis) BestLap() (telemetry.LapRecord, error) {
	if a.Empty() {
		return telemetry.LapRecord{}, ErrNoData
	}
	return a.View[a.best], nil
}

// IsLeader reports whether driver set the fastest time of the given lap.
func (a *Analysis) IsLeader(lap int, driver string) bool {
	_, ok := a.Leaders[LeaderKey{Lap: lap, Driver: driver}]
	return ok
}

// Series returns one point per filtered row, in input order.
func (a *Analysis) Series() []SeriesPoint {
	out := make([]SeriesPoint, 0, len(a.View))
	for _, r := range a.View {
		out = append(out, SeriesPoint{
			Lap:             r.Lap,
			Driver:          r.Driver,
			Duration:        r.Duration,
			DurationSeconds: r.DurationSeconds,
			Leader:          a.IsLeader(r.Lap, r.Driver),
		})
	}
	return out
}

// driverAcc accumulates per-driver values in first-seen order.
type driverAcc struct {
	driver string
	total  time.Duration
	secs   float64
	rows   int
	laps   map[int]struct{}
}

// Aggregate computes every aggregate for the records of ds matching f.
// It does not modify ds.
func Aggregate(ds *telemetry.Dataset, f Filter) *Analysis {
	a := &Analysis{Filter: f, Leaders: map[LeaderKey]struct{}{}}
	for i := 0; i < ds.Len(); i++ {
		if r := ds.At(i); f.Match(r) {
			a.View = append(a.View, r)
		}
	}
	if a.Empty() {
		return a
	}

	lapBest := map[int]int{} // lap -> index into View
	var lapOrder []int
	var accs []*driverAcc
	byDriver := map[string]*driverAcc{}
	for i, r := range a.View {
		if r.Duration < a.View[a.best].Duration {
			a.best = i
		}
		if j, ok := lapBest[r.Lap]; !ok {
			lapBest[r.Lap] = i
			lapOrder = append(lapOrder, r.Lap)
		} else if r.Duration < a.View[j].Duration {
			lapBest[r.Lap] = i
		}
		acc := byDriver[r.Driver]
		if acc == nil {
			acc = &driverAcc{driver: r.Driver, laps: map[int]struct{}{}}
			byDriver[r.Driver] = acc
			accs = append(accs, acc)
		}
		acc.total = addSaturating(acc.total, r.Duration)
		acc.secs += r.DurationSeconds
		acc.rows++
		acc.laps[r.Lap] = struct{}{}
	}
	for _, lap := range lapOrder {
		r := a.View[lapBest[lap]]
		a.Leaders[LeaderKey{Lap: lap, Driver: r.Driver}] = struct{}{}
	}

	for _, acc := range accs {
		a.Means = append(a.Means, DriverMean{
			Driver:      acc.driver,
			Mean:        meanOf(acc),
			MeanSeconds: acc.secs / float64(acc.rows),
		})
		a.Totals = append(a.Totals, DriverTotal{
			Driver:       acc.driver,
			Total:        acc.total,
			TotalSeconds: acc.total.Seconds(),
		})
		a.LapCounts = append(a.LapCounts, DriverLapCount{Driver: acc.driver, Laps: len(acc.laps)})
	}
	slices.SortStableFunc(a.Means, func(x, y DriverMean) int { return cmp.Compare(x.Mean, y.Mean) })
	slices.SortStableFunc(a.Totals, func(x, y DriverTotal) int { return cmp.Compare(x.Total, y.Total) })
	for i := range a.Totals {
		a.Totals[i].Rank = i + 1
		a.Totals[i].Gap = a.Totals[i].Total - a.Totals[0].Total
	}
	slices.SortStableFunc(a.LapCounts, func(x, y DriverLapCount) int { return strings.Compare(x.Driver, y.Driver) })
	return a
}


// addSaturating adds two non-negative durations, pinning at the largest
// representable duration instead of wrapping.
func addSaturating(a, b time.Duration) time.Duration {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

func meanOf(acc *driverAcc) time.Duration {
	if acc.total < math.MaxInt64 {
		return acc.total / time.Duration(acc.rows)
	}
	ns := acc.secs / float64(acc.rows) * float64(time.Second)
	if ns >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(ns)
}
