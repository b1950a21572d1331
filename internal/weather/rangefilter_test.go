package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterRange_InclusiveBounds(t *testing.T) {
	start := at(time.DateTime, "2025-07-01 00:00:00")
	end := at(time.DateTime, "2025-07-02 00:00:00")

	readings := []Reading{
		tempReading(start.Add(-time.Microsecond), 1),
		tempReading(start, 2),
		tempReading(start.Add(6*time.Hour), 3),
		tempReading(end, 4),
		tempReading(end.Add(time.Microsecond), 5),
	}

	got := FilterRange(readings, TimeRange{Start: start, End: end})
	var values []float64
	for _, r := range got {
		v, _ := r.Value(MetricTemperature)
		values = append(values, v)
	}
	assert.Equal(t, []float64{2, 3, 4}, values)
}

func TestFilterRange_PreservesOrder(t *testing.T) {
	start := at(time.DateTime, "2025-07-01 00:00:00")
	readings := []Reading{
		tempReading(start.Add(3*time.Hour), 3),
		tempReading(start.Add(time.Hour), 1),
		tempReading(start.Add(2*time.Hour), 2),
	}

	got := FilterRange(readings, TimeRange{Start: start, End: start.Add(24 * time.Hour)})
	assert.Equal(t, readings, got)
}

func TestFilterRange_InvertedWindowIsEmpty(t *testing.T) {
	start := at(time.DateTime, "2025-07-02 00:00:00")
	readings := []Reading{tempReading(start, 1)}

	got := FilterRange(readings, TimeRange{Start: start, End: start.Add(-time.Hour)})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterRange_InvalidTimestampNeverMatches(t *testing.T) {
	got := FilterRange([]Reading{tempReading(time.Time{}, 1)}, TimeRange{
		Start: time.Time{},
		End:   at(time.DateTime, "2025-07-02 00:00:00"),
	})
	assert.Empty(t, got)
}
