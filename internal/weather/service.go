package weather

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/guregu/null"
)

// Service ties a reading store, the station table and an optional series cache
// to the aggregation engine.
type Service struct {
	store    Store
	cache    SeriesCache
	stations map[string]Station
	order    []string
	logger   *slog.Logger

	// generation counts ingests per station. A series computed under an
	// older generation is not cached.
	genMu      sync.Mutex
	generation map[string]uint64
}

// NewService creates a new Service. cache may be nil to disable memoization.
func NewService(store Store, stations []Station, cache SeriesCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		cache:    cache,
		stations: make(map[string]Station, len(stations)),
		logger:   logger,

		generation: make(map[string]uint64),
	}
	for _, st := range stations {
		s.stations[st.ID] = st
		s.order = append(s.order, st.ID)
	}
	sort.Strings(s.order)
	return s
}

// SeriesQuery asks for one metric of one station over a window.
type SeriesQuery struct {
	StationID   string
	Metric      Metric
	Granularity Granularity
	Range       TimeRange
}

// Stations lists the configured stations ordered by id.
func (s *Service) Stations() []Station {
	out := make([]Station, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.stations[id])
	}
	return out
}

// Station looks up a configured station.
func (s *Service) Station(id string) (Station, error) {
	st, ok := s.stations[id]
	if !ok {
		return Station{}, fmt.Errorf("%w: %q", ErrUnknownStation, id)
	}
	return st, nil
}

// Ingest stores readings and drops cached series of every station that gained rows.
func (s *Service) Ingest(ctx context.Context, readings []Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}
	n, err := s.store.SaveReadings(ctx, readings)
	if err != nil {
		return n, fmt.Errorf("save readings: %w", err)
	}
	if n > 0 && s.cache != nil {
		touched := make(map[string]struct{})
		for _, r := range readings {
			touched[r.StationID] = struct{}{}
		}
		s.genMu.Lock()
		for id := range touched {
			s.generation[id]++
			s.cache.InvalidateStation(id)
		}
		s.genMu.Unlock()
	}
	s.logger.Debug("ingested readings", "considered", len(readings), "inserted", n)
	return n, nil
}

// Latest returns the most recent reading of a station.
func (s *Service) Latest(ctx context.Context, stationID string) (Reading, error) {
	st, err := s.Station(stationID)
	if err != nil {
		return Reading{}, err
	}
	r, err := s.store.Latest(ctx, stationID)
	if err != nil {
		return Reading{}, err
	}
	return inZone(r, st.Loc()), nil
}

// LatestAll returns the most recent reading of every station that has data.
func (s *Service) LatestAll(ctx context.Context) ([]Reading, error) {
	rows, err := s.store.LatestAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, len(rows))
	for _, r := range rows {
		st, ok := s.stations[r.StationID]
		if !ok {
			continue
		}
		out = append(out, inZone(r, st.Loc()))
	}
	return out, nil
}

// Range returns a station's readings inside tr, expressed in the station's zone.
func (s *Service) Range(ctx context.Context, stationID string, tr TimeRange) ([]Reading, error) {
	st, err := s.Station(stationID)
	if err != nil {
		return nil, err
	}
	if tr.Start.After(tr.End) {
		return []Reading{}, nil
	}
	rows, err := s.store.Range(ctx, stationID, tr.Start, tr.End)
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", stationID, err)
	}
	loc := st.Loc()
	for i := range rows {
		rows[i] = inZone(rows[i], loc)
	}
	return FilterRange(rows, tr), nil
}

// Series aggregates one metric for a chart, consulting the cache first.
func (s *Service) Series(ctx context.Context, q SeriesQuery) (Series, error) {
	if !q.Metric.Valid() {
		return Series{}, fmt.Errorf("%w: %q", ErrUnknownMetric, q.Metric)
	}
	if _, _, err := q.Granularity.Rule(); err != nil {
		return Series{}, err
	}

	key := SeriesKey{
		StationID:   q.StationID,
		Metric:      q.Metric,
		Granularity: q.Granularity,
		Start:       q.Range.Start.UnixNano(),
		End:         q.Range.End.UnixNano(),
	}
	var gen uint64
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		gen = s.stationGeneration(q.StationID)
	}

	rows, err := s.Range(ctx, q.StationID, q.Range)
	if err != nil {
		return Series{}, err
	}
	series, err := BuildSeries(rows, q.Granularity, q.Metric)
	if err != nil {
		return Series{}, err
	}

	if s.cache != nil {
		s.genMu.Lock()
		if s.generation[q.StationID] == gen {
			s.cache.Add(key, series)
		}
		s.genMu.Unlock()
	}
	return series, nil
}

func (s *Service) stationGeneration(id string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation[id]
}

// WindRose bins a station's wind directions into the 16 compass sectors.
func (s *Service) WindRose(ctx context.Context, stationID string, tr TimeRange, weighted bool) ([16]float64, error) {
	rows, err := s.Range(ctx, stationID, tr)
	if err != nil {
		return [16]float64{}, err
	}
	return BinWindDirections(rows, weighted), nil
}

// MeanWindDirection returns the speed-weighted circular mean direction over tr.
func (s *Service) MeanWindDirection(ctx context.Context, stationID string, tr TimeRange) (null.Float, error) {
	rows, err := s.Range(ctx, stationID, tr)
	if err != nil {
		return null.Float{}, err
	}
	return MeanWindDirection(rows), nil
}

func inZone(r Reading, loc *time.Location) Reading {
	if r.HasTimestamp() {
		r.Timestamp = r.Timestamp.In(loc)
	}
	return r
}
