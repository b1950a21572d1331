package weather

import (
	"context"
	"time"
)

// Store is the contract the memory, SQLite and Badger stores satisfy.
type Store interface {
	// SaveReadings persists readings and returns how many were new.
	SaveReadings(ctx context.Context, readings []Reading) (int, error)
	Latest(ctx context.Context, stationID string) (Reading, error)
	LatestAll(ctx context.Context) ([]Reading, error)
	// Range returns a station's readings between from and to, inclusive, ordered by time.
	Range(ctx context.Context, stationID string, from, to time.Time) ([]Reading, error)
}

// SeriesKey identifies one cached aggregation.
type SeriesKey struct {
	StationID   string
	Metric      Metric
	Granularity Granularity
	Start       int64
	End         int64
}

// SeriesCache memoizes aggregations. Implementations must be safe for concurrent use.
type SeriesCache interface {
	Get(key SeriesKey) (Series, bool)
	Add(key SeriesKey, s Series)
	InvalidateStation(stationID string)
}
