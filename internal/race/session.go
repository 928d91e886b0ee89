package race

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// sessionCacheSize bounds the analyses kept per session.
const sessionCacheSize = 64

// Session binds one uploaded dataset to its aggregates. Aggregate results are
// memoized by filter since the dataset never changes; the least recently
// used ones are dropped once sessionCacheSize is reached.
type Session struct {
	Name    string
	Dataset *telemetry.Dataset
	Stats   telemetry.DropStats

	drivers []string
	laps    []int
	cache   *lru.Cache[string, *Analysis]
}

// NewSession creates a Session for a validated dataset.
func NewSession(name string, ds *telemetry.Dataset, stats telemetry.DropStats) *Session {
	cache, err := lru.New[string, *Analysis](sessionCacheSize)
	if err != nil {
		// only a non-positive size fails
		panic(err)
	}
	return &Session{
		Name:    name,
		Dataset: ds,
		Stats:   stats,
		drivers: ObservedDrivers(ds),
		laps:    ObservedLaps(ds),
		cache:   cache,
	}
}

// DefaultFilter selects everything observed in the session's dataset.
func (s *Session) DefaultFilter() Filter { return NewFilter(s.drivers, s.laps) }

// Analyze returns the aggregates for f. Drivers and laps absent from the
// dataset are dropped from f first; they cannot match any record.
func (s *Session) Analyze(f Filter) *Analysis {
	f = f.Restrict(s.drivers, s.laps)
	key := f.Key()
	if a, ok := s.cache.Get(key); ok {
		return a
	}
	a := Aggregate(s.Dataset, f)
	s.cache.Add(key, a)
	return a
}
