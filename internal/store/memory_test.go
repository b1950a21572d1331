package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-observatory/internal/weather"
)

func TestMemoryStore_RetentionByCount(t *testing.T) {
	s := NewMemoryStore(2, 0)
	ctx := context.Background()

	_, err := s.SaveReadings(ctx, []weather.Reading{
		reading("ahm", 0, 1),
		reading("ahm", time.Minute, 2),
		reading("ahm", 2*time.Minute, 3),
	})
	require.NoError(t, err)

	got, err := s.Range(ctx, "ahm", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(base.Add(time.Minute)))

	// The evicted timestamp may be stored again.
	n, err := s.SaveReadings(ctx, []weather.Reading{reading("ahm", 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_RetentionByAge(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	s.now = func() time.Time { return base.Add(3 * time.Hour) }
	ctx := context.Background()

	_, err := s.SaveReadings(ctx, []weather.Reading{
		reading("ahm", 0, 1),
		reading("ahm", time.Hour, 2),
		reading("ahm", 150*time.Minute, 3),
	})
	require.NoError(t, err)

	got, err := s.Range(ctx, "ahm", base, base.Add(4*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	v, _ := got[0].Value(weather.MetricTemperature)
	assert.Equal(t, 3.0, v)
}

func TestMemoryStore_AllExpired(t *testing.T) {
	s := NewMemoryStore(0, time.Minute)
	s.now = func() time.Time { return base.Add(24 * time.Hour) }

	_, err := s.SaveReadings(context.Background(), []weather.Reading{reading("ahm", 0, 1)})
	require.NoError(t, err)

	_, err = s.Latest(context.Background(), "ahm")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnedReadingsDoNotAliasHistory(t *testing.T) {
	s := NewMemoryStore(0, 0)
	ctx := context.Background()

	in := reading("ahm", 0, 20)
	_, err := s.SaveReadings(ctx, []weather.Reading{in})
	require.NoError(t, err)
	in.Set(weather.MetricTemperature, 99)

	latest, err := s.Latest(ctx, "ahm")
	require.NoError(t, err)
	latest.Set(weather.MetricTemperature, 50)

	all, err := s.LatestAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	all[0].Set(weather.MetricTemperature, 60)

	got, err := s.Range(ctx, "ahm", base, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	v, ok := got[0].Value(weather.MetricTemperature)
	require.True(t, ok)
	assert.Equal(t, 20.0, v)
}
