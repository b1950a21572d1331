package weather

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata" // station zones must resolve on hosts without a zoneinfo database

	"github.com/guregu/null"
)

// Metric is the canonical identifier of a sensor quantity.
type Metric string

const (
	MetricTemperature   Metric = "temperature_c"
	MetricHumidity      Metric = "humidity_pct"
	MetricRainfall      Metric = "rainfall_mm"
	MetricPressure      Metric = "pressure_hpa"
	MetricWindSpeed     Metric = "windspeed_ms"
	MetricVisibility    Metric = "visibility_km"
	MetricBatteryVolts  Metric = "battery_voltage_v"
	MetricSolarRad      Metric = "solar_radiation"
	MetricTempIn        Metric = "temp_in_c"
	MetricHumidityIn    Metric = "humidity_in_pct"
	MetricWindDirection Metric = "wind_dir_deg"
)

// Reducer collapses the values of one bucket into a single number.
type Reducer string

const (
	ReducerAvg Reducer = "avg"
	ReducerSum Reducer = "sum"
)

// ChartKind tells the dashboard how a metric is usually drawn.
type ChartKind string

const (
	ChartLine ChartKind = "line"
	ChartBar  ChartKind = "bar"
	ChartRose ChartKind = "rose"
)

// FieldMeta describes how a metric is labeled, measured and reduced.
type FieldMeta struct {
	Label   string    `json:"label"`
	Unit    string    `json:"unit"`
	Reducer Reducer   `json:"reducer"`
	Chart   ChartKind `json:"chart"`
}

// metricOrder fixes the iteration order used for storage columns and listings.
var metricOrder = []Metric{
	MetricTemperature,
	MetricHumidity,
	MetricRainfall,
	MetricPressure,
	MetricWindSpeed,
	MetricVisibility,
	MetricBatteryVolts,
	MetricSolarRad,
	MetricTempIn,
	MetricHumidityIn,
	MetricWindDirection,
}

// Fields is the single metadata table every call site reads from.
// Rainfall is accumulative and therefore summed; everything else is averaged.
var Fields = map[Metric]FieldMeta{
	MetricTemperature:   {Label: "Temperature", Unit: "°C", Reducer: ReducerAvg, Chart: ChartLine},
	MetricHumidity:      {Label: "Humidity", Unit: "%", Reducer: ReducerAvg, Chart: ChartLine},
	MetricRainfall:      {Label: "Rainfall", Unit: "mm", Reducer: ReducerSum, Chart: ChartBar},
	MetricPressure:      {Label: "Pressure", Unit: "hPa", Reducer: ReducerAvg, Chart: ChartLine},
	MetricWindSpeed:     {Label: "Wind speed", Unit: "m/s", Reducer: ReducerAvg, Chart: ChartLine},
	MetricVisibility:    {Label: "Visibility", Unit: "km", Reducer: ReducerAvg, Chart: ChartLine},
	MetricBatteryVolts:  {Label: "Battery", Unit: "V", Reducer: ReducerAvg, Chart: ChartLine},
	MetricSolarRad:      {Label: "Solar radiation", Unit: "W/m²", Reducer: ReducerAvg, Chart: ChartLine},
	MetricTempIn:        {Label: "Indoor temperature", Unit: "°C", Reducer: ReducerAvg, Chart: ChartLine},
	MetricHumidityIn:    {Label: "Indoor humidity", Unit: "%", Reducer: ReducerAvg, Chart: ChartLine},
	MetricWindDirection: {Label: "Wind direction", Unit: "°", Reducer: ReducerAvg, Chart: ChartRose},
}

// AllMetrics returns every canonical metric in a stable order.
func AllMetrics() []Metric {
	out := make([]Metric, len(metricOrder))
	copy(out, metricOrder)
	return out
}

// ParseMetric resolves a canonical metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
	}
	return m, nil
}

// Valid reports whether m is one of the canonical metrics.
func (m Metric) Valid() bool {
	_, ok := Fields[m]
	return ok
}

// Meta returns the metadata row for m. Unknown metrics yield the zero value.
func (m Metric) Meta() FieldMeta {
	return Fields[m]
}

// ParseReducer resolves a reducer token.
func ParseReducer(s string) (Reducer, error) {
	switch r := Reducer(s); r {
	case ReducerAvg, ReducerSum:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownReducer, s)
	}
}

// Station is one of the fixed observatories feeding the dashboard.
type Station struct {
	ID       string  `json:"obs_id"`
	Name     string  `json:"name"`
	Place    string  `json:"location"`
	TimeZone string  `json:"time_zone"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Loc returns the station's time zone, falling back to UTC when it cannot be loaded.
func (s Station) Loc() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultStations are the observatories the dashboard knows about.
var DefaultStations = []Station{
	{ID: "ahm", Name: "Ahmedabad", Place: "Ahmedabad, Gujarat", TimeZone: "Asia/Kolkata", Lat: 23.0225, Lon: 72.5714},
	{ID: "mtabu", Name: "Mount Abu", Place: "Mount Abu, Rajasthan", TimeZone: "Asia/Kolkata", Lat: 24.5926, Lon: 72.7156},
	{ID: "udi", Name: "Udaipur", Place: "Udaipur, Rajasthan", TimeZone: "Asia/Kolkata", Lat: 24.5854, Lon: 73.7125},
}

// Reading is one sensor sample. A zero Timestamp marks an unparseable time.
type Reading struct {
	StationID string                `json:"obs_id"`
	Timestamp time.Time             `json:"reading_ts"`
	Values    map[Metric]null.Float `json:"values"`
}

// NewReading builds a reading with an empty value set.
func NewReading(stationID string, ts time.Time) Reading {
	return Reading{
		StationID: stationID,
		Timestamp: ts,
		Values:    make(map[Metric]null.Float),
	}
}

// Set stores v for m, recording non-finite numbers as absent.
func (r *Reading) Set(m Metric, v float64) {
	if r.Values == nil {
		r.Values = make(map[Metric]null.Float)
	}
	if !isFinite(v) {
		r.Values[m] = null.Float{}
		return
	}
	r.Values[m] = null.FloatFrom(v)
}

// Value returns the finite value of m, if any.
func (r Reading) Value(m Metric) (float64, bool) {
	v, ok := r.Values[m]
	if !ok || !v.Valid || !isFinite(v.Float64) {
		return 0, false
	}
	return v.Float64, true
}

// Clone returns a copy whose Values map is not shared with r.
func (r Reading) Clone() Reading {
	out := r
	out.Values = make(map[Metric]null.Float, len(r.Values))
	for m, v := range r.Values {
		out.Values[m] = v
	}
	return out
}

// HasTimestamp reports whether the reading carries a usable instant.
func (r Reading) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
