package weather

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windReading(dir, speed float64) Reading {
	r := NewReading("mtabu", at(time.DateTime, "2025-07-01 00:00:00"))
	r.Set(MetricWindDirection, dir)
	r.Set(MetricWindSpeed, speed)
	return r
}

// angularDistance is the shortest distance between two compass angles.
func angularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	return math.Min(d, 360-d)
}

func TestSectorIndex_Centering(t *testing.T) {
	cases := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11.2, "N"},
		{11.3, "NNE"},
		{348.8, "N"},
		{348.7, "NNW"},
		{360, "N"},
		{-10, "N"},
		{90, "E"},
		{180, "S"},
		{270, "W"},
		{725, "N"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompassPoints[SectorIndex(tc.deg)], "deg=%v", tc.deg)
	}
}

func TestBinWindDirections(t *testing.T) {
	readings := []Reading{windReading(0, 2), windReading(0, 4)}

	weighted := BinWindDirections(readings, true)
	assert.Equal(t, 6.0, weighted[0])

	counts := BinWindDirections(readings, false)
	assert.Equal(t, 2.0, counts[0])
}

func TestBinWindDirections_SkipsMissingDirection(t *testing.T) {
	noDir := NewReading("mtabu", at(time.DateTime, "2025-07-01 00:00:00"))
	noDir.Set(MetricWindSpeed, 3)

	bins := BinWindDirections([]Reading{noDir, windReading(math.NaN(), 1), windReading(90, 1)}, false)

	var total float64
	for _, v := range bins {
		total += v
	}
	assert.Equal(t, 1.0, total)
	assert.Equal(t, 1.0, bins[4])
}

func TestVectorAverageDirection_Wraparound(t *testing.T) {
	got := VectorAverageDirection([]float64{350, 10}, nil)
	require.True(t, got.Valid)
	assert.InDelta(t, 0, angularDistance(got.Float64, 0), 1e-9)
	assert.GreaterOrEqual(t, got.Float64, 0.0)
	assert.Less(t, got.Float64, 360.0)
}

func TestVectorAverageDirection_Empty(t *testing.T) {
	assert.False(t, VectorAverageDirection(nil, nil).Valid)
	assert.False(t, VectorAverageDirection([]float64{math.NaN()}, []float64{4}).Valid)
	assert.False(t, VectorAverageDirection([]float64{90}, []float64{0}).Valid)
}

func TestVectorAverageDirection_OpposingDirectionsCancel(t *testing.T) {
	assert.False(t, VectorAverageDirection([]float64{0, 180}, nil).Valid)
	assert.False(t, VectorAverageDirection([]float64{90, 270}, nil).Valid)
	assert.False(t, VectorAverageDirection([]float64{45, 225}, []float64{3, 3}).Valid)

	// Unequal speeds leave a resultant towards the stronger wind.
	got := VectorAverageDirection([]float64{0, 180}, []float64{1, 2})
	require.True(t, got.Valid)
	assert.InDelta(t, 180, got.Float64, 1e-9)
}

func TestVectorAverageDirection_Weighted(t *testing.T) {
	got := VectorAverageDirection([]float64{0, 90}, []float64{1, 1})
	require.True(t, got.Valid)
	assert.InDelta(t, 45, got.Float64, 1e-9)

	// A heavier easterly pulls the mean towards 90.
	heavy := VectorAverageDirection([]float64{0, 90}, []float64{1, 3})
	require.True(t, heavy.Valid)
	assert.Greater(t, heavy.Float64, 45.0)
	assert.Less(t, heavy.Float64, 90.0)
}

func TestVectorAverageDirection_MissingSpeedDefaultsToOne(t *testing.T) {
	got := VectorAverageDirection([]float64{270, 0}, []float64{math.NaN()})
	require.True(t, got.Valid)
	assert.InDelta(t, 315, got.Float64, 1e-9)
}

func TestMeanWindDirection(t *testing.T) {
	noSpeed := NewReading("mtabu", at(time.DateTime, "2025-07-01 00:00:00"))
	noSpeed.Set(MetricWindDirection, 340)

	got := MeanWindDirection([]Reading{noSpeed, windReading(20, 1)})
	require.True(t, got.Valid)
	assert.InDelta(t, 0, angularDistance(got.Float64, 0), 1e-9)
}

func TestCompassDegrees(t *testing.T) {
	deg, ok := CompassDegrees("nw")
	require.True(t, ok)
	assert.Equal(t, 315.0, deg)

	_, ok = CompassDegrees("north-ish")
	assert.False(t, ok)
}
