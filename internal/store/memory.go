package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// ErrNotFound is returned when no data is available for a given station.
var ErrNotFound = weather.ErrNotFound

// stationHistory holds a time-ordered list of readings for a station.
type stationHistory struct {
	readings []weather.Reading
	seen     map[int64]struct{}
}

// MemoryStore is a concurrency-safe in-memory implementation of a reading store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id, value: history
	data map[string]*stationHistory

	// retention configuration
	maxHistory int           // max number of readings per station
	maxAge     time.Duration // optional max age for readings

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory or maxAge is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*stationHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveReadings inserts readings in time order and enforces retention.
// Readings without a timestamp and repeated (station, timestamp) pairs are ignored.
func (s *MemoryStore) SaveReadings(_ context.Context, readings []weather.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]*stationHistory)
	inserted := 0
	for _, r := range readings {
		if !r.HasTimestamp() {
			continue
		}
		history, ok := s.data[r.StationID]
		if !ok {
			history = &stationHistory{seen: make(map[int64]struct{})}
			s.data[r.StationID] = history
		}
		key := r.Timestamp.UnixNano()
		if _, dup := history.seen[key]; dup {
			continue
		}
		history.seen[key] = struct{}{}
		history.readings = append(history.readings, r.Clone())
		touched[r.StationID] = history
		inserted++
	}

	for _, history := range touched {
		sort.SliceStable(history.readings, func(i, j int) bool {
			return history.readings[i].Timestamp.Before(history.readings[j].Timestamp)
		})
		s.enforceRetention(history)
	}
	return inserted, nil
}

func (s *MemoryStore) enforceRetention(history *stationHistory) {
	drop := 0

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.readings) > s.maxHistory {
		drop = len(history.readings) - s.maxHistory
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		for drop < len(history.readings) && history.readings[drop].Timestamp.Before(cutoff) {
			drop++
		}
	}

	if drop == 0 {
		return
	}
	for _, r := range history.readings[:drop] {
		delete(history.seen, r.Timestamp.UnixNano())
	}
	history.readings = append([]weather.Reading(nil), history.readings[drop:]...)
}

// Latest returns the most recent reading for a station.
func (s *MemoryStore) Latest(_ context.Context, stationID string) (weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[stationID]
	if !ok || len(history.readings) == 0 {
		return weather.Reading{}, ErrNotFound
	}
	return history.readings[len(history.readings)-1].Clone(), nil
}

// LatestAll returns the most recent reading of every station, ordered by station id.
func (s *MemoryStore) LatestAll(_ context.Context) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]weather.Reading, 0, len(s.data))
	for _, history := range s.data {
		if len(history.readings) == 0 {
			continue
		}
		out = append(out, history.readings[len(history.readings)-1].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

// Range returns all readings for a station between from and to (inclusive).
// A station without data yields an empty slice.
func (s *MemoryStore) Range(_ context.Context, stationID string, from, to time.Time) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]weather.Reading, 0)
	history, ok := s.data[stationID]
	if !ok {
		return result, nil
	}

	// History is sorted, so binary search for the first reading at or after from.
	start := sort.Search(len(history.readings), func(i int) bool {
		return !history.readings[i].Timestamp.Before(from)
	})
	for _, r := range history.readings[start:] {
		if r.Timestamp.After(to) {
			break
		}
		result = append(result, r.Clone())
	}
	return result, nil
}
