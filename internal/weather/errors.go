package weather

import "errors"

var (
	// ErrNotFound is returned when a store has no data for a station.
	ErrNotFound = errors.New("no weather data for station")

	ErrUnknownStation     = errors.New("unknown station")
	ErrUnknownMetric      = errors.New("unknown metric")
	ErrUnknownReducer     = errors.New("unknown reducer")
	ErrUnknownGranularity = errors.New("unknown granularity")
	ErrUnknownBucketMode  = errors.New("unknown bucket mode")
	ErrUnknownLabelFormat = errors.New("unknown label format")
)
