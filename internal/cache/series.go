// Package cache holds the memoized chart series handed to weather.Service.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// SeriesCache is a size-bounded, TTL-expiring cache of aggregated series.
// Entries of a station are dropped explicitly when new readings for it land.
type SeriesCache struct {
	lru *expirable.LRU[weather.SeriesKey, weather.Series]
}

// NewSeriesCache creates a cache holding at most size entries for ttl each.
func NewSeriesCache(size int, ttl time.Duration) *SeriesCache {
	if size <= 0 {
		size = 256
	}
	return &SeriesCache{lru: expirable.NewLRU[weather.SeriesKey, weather.Series](size, nil, ttl)}
}

// Get returns a copy of the cached series so callers may own the result.
func (c *SeriesCache) Get(key weather.SeriesKey) (weather.Series, bool) {
	s, ok := c.lru.Get(key)
	if !ok {
		return weather.Series{}, false
	}
	return clone(s), true
}

func (c *SeriesCache) Add(key weather.SeriesKey, s weather.Series) {
	c.lru.Add(key, clone(s))
}

// InvalidateStation removes every entry computed for stationID.
func (c *SeriesCache) InvalidateStation(stationID string) {
	for _, k := range c.lru.Keys() {
		if k.StationID == stationID {
			c.lru.Remove(k)
		}
	}
}

// Len reports the number of live entries.
func (c *SeriesCache) Len() int {
	return c.lru.Len()
}

func clone(s weather.Series) weather.Series {
	return weather.Series{
		Labels:  append(make([]string, 0, len(s.Labels)), s.Labels...),
		Series:  append(make([]float64, 0, len(s.Series)), s.Series...),
		Avg:     s.Avg,
		Samples: append(make([]int, 0, len(s.Samples)), s.Samples...),
	}
}
