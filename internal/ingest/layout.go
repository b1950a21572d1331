package ingest

import (
	"strings"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// Layout describes how one station's logger writes its lines.
type Layout struct {
	StationID string
	// LiveFile is the single-line file holding the latest sample.
	LiveFile string
	// Columns are the raw field names in line order.
	Columns []string
}

var davisColumns = []string{
	"timestamp", "barometer_hpa", "battery_status", "battery_volts",
	"hum_in", "hum_out", "rain_day_mm", "rain_rate_mm_hr", "solar_rad",
	"sunrise", "sunset", "temp_in_c", "temp_out_c", "wind_dir", "wind_speed_ms",
}

// DefaultLayouts are the loggers deployed at the fixed stations.
var DefaultLayouts = map[string]Layout{
	"ahm": {StationID: "ahm", LiveFile: "ahmedabad_live.txt", Columns: davisColumns},
	"udi": {StationID: "udi", LiveFile: "udaipur_live.txt", Columns: davisColumns},
	"mtabu": {StationID: "mtabu", LiveFile: "mountabu_live.txt", Columns: []string{
		"timestamp", "battery_volts", "hum_in", "hum_out", "rain_day_mm",
		"rain_rate_mm_hr", "solar_rad", "sunrise", "sunset", "temp_in_c",
		"temp_out_c", "wind_dir", "wind_speed_ms",
	}},
}

// columnMetrics resolves every raw column spelling to its canonical metric.
// Columns absent from this table (sunrise, battery_status, ...) are not stored.
var columnMetrics = map[string]weather.Metric{
	"temp_out_c":      weather.MetricTemperature,
	"tempout(c)":      weather.MetricTemperature,
	"hum_out":         weather.MetricHumidity,
	"humout":          weather.MetricHumidity,
	"rain_day_mm":     weather.MetricRainfall,
	"rainrate(mm/hr)": weather.MetricRainfall,
	"barometer_hpa":   weather.MetricPressure,
	"barometer(hpa)":  weather.MetricPressure,
	"wind_speed_ms":   weather.MetricWindSpeed,
	"windspeed(m/s)":  weather.MetricWindSpeed,
	"visibility_km":   weather.MetricVisibility,
	"battery_volts":   weather.MetricBatteryVolts,
	"batteryvolts":    weather.MetricBatteryVolts,
	"solar_rad":       weather.MetricSolarRad,
	"temp_in_c":       weather.MetricTempIn,
	"hum_in":          weather.MetricHumidityIn,
	"wind_dir":        weather.MetricWindDirection,
}

// MetricForColumn maps a raw column name to a canonical metric.
func MetricForColumn(col string) (weather.Metric, bool) {
	m, ok := columnMetrics[normalizeColumn(col)]
	return m, ok
}

func normalizeColumn(col string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(col), "\ufeff"))
}

func isTimestampColumn(col string) bool {
	switch normalizeColumn(col) {
	case "timestamp", "time", "reading_ts":
		return true
	}
	return false
}
