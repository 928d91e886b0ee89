package race

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// Filter selects the drivers and laps that make up the analysed view.
// An empty set selects nothing; "all" has to be spelled out, see DefaultFilter.
type Filter struct {
	drivers map[string]struct{}
	laps    map[int]struct{}
}

// NewFilter builds a Filter from explicit driver and lap selections.
func NewFilter(drivers []string, laps []int) Filter {
	f := Filter{drivers: make(map[string]struct{}, len(drivers)), laps: make(map[int]struct{}, len(laps))}
	for _, d := range drivers {
		f.drivers[d] = struct{}{}
	}
	for _, l := range laps {
		f.laps[l] = struct{}{}
	}
	return f
}

// DefaultFilter selects every driver and lap observed in the dataset.
func DefaultFilter(ds *telemetry.Dataset) Filter {
	return NewFilter(ObservedDrivers(ds), ObservedLaps(ds))
}

// ObservedDrivers lists distinct drivers, sorted.
func ObservedDrivers(ds *telemetry.Dataset) []string {
	drivers := lo.Uniq(lo.Map(ds.Records(), func(r telemetry.LapRecord, _ int) string { return r.Driver }))
	slices.Sort(drivers)
	return drivers
}

// ObservedLaps lists distinct lap numbers, ascending.
func ObservedLaps(ds *telemetry.Dataset) []int {
	laps := lo.Uniq(lo.Map(ds.Records(), func(r telemetry.LapRecord, _ int) int { return r.Lap }))
	slices.Sort(laps)
	return laps
}

// Restrict keeps only the selected drivers and laps that also appear in the
// given sets.
func (f Filter) Restrict(drivers []string, laps []int) Filter {
	return NewFilter(
		lo.Filter(drivers, func(d string, _ int) bool { _, ok := f.drivers[d]; return ok }),
		lo.Filter(laps, func(l int, _ int) bool { _, ok := f.laps[l]; return ok }),
	)
}

// Match reports whether a record belongs to the filtered view.
func (f Filter) Match(r telemetry.LapRecord) bool {
	if _, ok := f.drivers[r.Driver]; !ok {
		return false
	}
	_, ok := f.laps[r.Lap]
	return ok
}

// Drivers returns the selected drivers, sorted.
func (f Filter) Drivers() []string {
	out := lo.Keys(f.drivers)
	slices.Sort(out)
	return out
}

// Laps returns the selected laps, ascending.
func (f Filter) Laps() []int {
	out := lo.Keys(f.laps)
	slices.Sort(out)
	return out
}

// Key is a canonical representation used for memoization.
func (f Filter) Key() string {
	laps := lo.Map(f.Laps(), func(l int, _ int) string { return fmt.Sprint(l) })
	return fmt.Sprintf("%q|%s", f.Drivers(), strings.Join(laps, ","))
}
