package weather

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     []Reading
	rangeHit int
}

func (f *fakeStore) SaveReadings(_ context.Context, readings []Reading) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, readings...)
	sort.SliceStable(f.rows, func(i, j int) bool { return f.rows[i].Timestamp.Before(f.rows[j].Timestamp) })
	return len(readings), nil
}

func (f *fakeStore) Latest(_ context.Context, stationID string) (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].StationID == stationID {
			return f.rows[i], nil
		}
	}
	return Reading{}, ErrNotFound
}

func (f *fakeStore) LatestAll(ctx context.Context) ([]Reading, error) {
	var out []Reading
	for _, id := range []string{"ahm", "udi", "ghost"} {
		if r, err := f.Latest(ctx, id); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) Range(_ context.Context, stationID string, from, to time.Time) ([]Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rangeHit++
	var out []Reading
	for _, r := range f.rows {
		if r.StationID == stationID && !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

type mapCache struct {
	entries     map[SeriesKey]Series
	invalidated []string
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[SeriesKey]Series)} }

func (c *mapCache) Get(key SeriesKey) (Series, bool) {
	s, ok := c.entries[key]
	return s, ok
}

func (c *mapCache) Add(key SeriesKey, s Series) { c.entries[key] = s }

func (c *mapCache) InvalidateStation(id string) {
	c.invalidated = append(c.invalidated, id)
	for k := range c.entries {
		if k.StationID == id {
			delete(c.entries, k)
		}
	}
}

func newTestService(t *testing.T) (*Service, *fakeStore, *mapCache) {
	t.Helper()
	store := &fakeStore{}
	cache := newMapCache()
	return NewService(store, DefaultStations, cache, nil), store, cache
}

func TestService_StationsAreSorted(t *testing.T) {
	svc, _, _ := newTestService(t)

	var ids []string
	for _, st := range svc.Stations() {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"ahm", "mtabu", "udi"}, ids)

	_, err := svc.Station("xyz")
	assert.True(t, errors.Is(err, ErrUnknownStation))
}

func TestService_SeriesUsesStationZoneAndCache(t *testing.T) {
	svc, store, cache := newTestService(t)
	ctx := context.Background()

	// 20:00 UTC is 01:30 the next day in Asia/Kolkata.
	_, err := svc.Ingest(ctx, []Reading{
		{StationID: "ahm", Timestamp: at(time.DateTime, "2025-07-01 10:00:00"), Values: tempReading(time.Time{}, 20).Values},
		{StationID: "ahm", Timestamp: at(time.DateTime, "2025-07-01 20:00:00"), Values: tempReading(time.Time{}, 30).Values},
	})
	require.NoError(t, err)

	q := SeriesQuery{
		StationID:   "ahm",
		Metric:      MetricTemperature,
		Granularity: GranularityDaily,
		Range: TimeRange{
			Start: at(time.DateTime, "2025-07-01 00:00:00"),
			End:   at(time.DateTime, "2025-07-03 00:00:00"),
		},
	}

	s, err := svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-01", "2025-07-02"}, s.Labels)
	assert.Equal(t, []float64{20, 30}, s.Series)
	assert.Equal(t, 1, store.rangeHit)

	_, err = svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, store.rangeHit, "second call should be served from cache")

	_, err = svc.Ingest(ctx, []Reading{tempReading(at(time.DateTime, "2025-07-02 10:00:00"), 10)})
	require.NoError(t, err)
	assert.Equal(t, []string{"ahm"}, cache.invalidated)

	s, err = svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, store.rangeHit)
	assert.Equal(t, []float64{20, 20}, s.Series)
}

func TestService_SeriesRejectsUnknownInputs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	tr := TimeRange{Start: at(time.DateTime, "2025-07-01 00:00:00"), End: at(time.DateTime, "2025-07-02 00:00:00")}

	_, err := svc.Series(ctx, SeriesQuery{StationID: "ahm", Metric: "TempOut(C)", Granularity: GranularityDaily, Range: tr})
	assert.True(t, errors.Is(err, ErrUnknownMetric))

	_, err = svc.Series(ctx, SeriesQuery{StationID: "ahm", Metric: MetricTemperature, Granularity: "hourly", Range: tr})
	assert.True(t, errors.Is(err, ErrUnknownGranularity))

	_, err = svc.Series(ctx, SeriesQuery{StationID: "nowhere", Metric: MetricTemperature, Granularity: GranularityDaily, Range: tr})
	assert.True(t, errors.Is(err, ErrUnknownStation))
}

func TestService_LatestAllSkipsUnknownStations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ghost := tempReading(at(time.DateTime, "2025-07-01 00:00:00"), 1)
	ghost.StationID = "ghost"
	_, err := svc.Ingest(ctx, []Reading{ghost, tempReading(at(time.DateTime, "2025-07-01 00:00:00"), 2)})
	require.NoError(t, err)

	latest, err := svc.LatestAll(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "ahm", latest[0].StationID)
	assert.Equal(t, "Asia/Kolkata", latest[0].Timestamp.Location().String())

	_, err = svc.Latest(ctx, "udi")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_WindRoseAndMean(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := windReading(350, 2)
	a.StationID = "mtabu"
	b := windReading(10, 2)
	b.StationID = "mtabu"
	b.Timestamp = b.Timestamp.Add(time.Minute)
	_, err := svc.Ingest(ctx, []Reading{a, b})
	require.NoError(t, err)

	tr := TimeRange{Start: at(time.DateTime, "2025-06-30 00:00:00"), End: at(time.DateTime, "2025-07-02 00:00:00")}

	rose, err := svc.WindRose(ctx, "mtabu", tr, true)
	require.NoError(t, err)
	assert.Equal(t, 4.0, rose[0])

	mean, err := svc.MeanWindDirection(ctx, "mtabu", tr)
	require.NoError(t, err)
	require.True(t, mean.Valid)
	assert.InDelta(t, 0, angularDistance(mean.Float64, 0), 1e-9)

	empty, err := svc.MeanWindDirection(ctx, "udi", tr)
	require.NoError(t, err)
	assert.False(t, empty.Valid)
}

// racingStore lands one extra ingest between reading a range and returning it.
type racingStore struct {
	*fakeStore
	svc   *Service
	extra Reading
	once  sync.Once
}

func (r *racingStore) Range(ctx context.Context, stationID string, from, to time.Time) ([]Reading, error) {
	rows, err := r.fakeStore.Range(ctx, stationID, from, to)
	r.once.Do(func() {
		_, err = r.svc.Ingest(ctx, []Reading{r.extra})
	})
	return rows, err
}

func TestService_SeriesComputedDuringIngestIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{
		fakeStore: &fakeStore{},
		extra:     tempReading(at(time.DateTime, "2025-07-01 05:00:00"), 30),
	}
	svc := NewService(store, DefaultStations, newMapCache(), nil)
	store.svc = svc

	_, err := store.fakeStore.SaveReadings(ctx, []Reading{tempReading(at(time.DateTime, "2025-07-01 04:00:00"), 10)})
	require.NoError(t, err)

	q := SeriesQuery{
		StationID:   "ahm",
		Metric:      MetricTemperature,
		Granularity: GranularityDaily,
		Range: TimeRange{
			Start: at(time.DateTime, "2025-07-01 00:00:00"),
			End:   at(time.DateTime, "2025-07-02 00:00:00"),
		},
	}

	first, err := svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, first.Series)

	second, err := svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []float64{20}, second.Series)
	assert.Equal(t, []int{2}, second.Samples)
	assert.Equal(t, 2, store.rangeHit)

	_, err = svc.Series(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, store.rangeHit, "a series computed after the ingest is cached")
}
