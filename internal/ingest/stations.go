package ingest

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// StationFile is the on-disk description of the deployed stations.
type StationFile struct {
	Stations []StationSpec `yaml:"stations"`
}

// StationSpec couples a station with the layout of its logger files.
type StationSpec struct {
	ID       string   `yaml:"obs_id"`
	Name     string   `yaml:"name"`
	Location string   `yaml:"location"`
	TimeZone string   `yaml:"time_zone"`
	Lat      float64  `yaml:"lat"`
	Lon      float64  `yaml:"lon"`
	LiveFile string   `yaml:"live_file"`
	Columns  []string `yaml:"columns"`
}

// LoadStationFile reads a YAML station file. Stations without columns reuse
// the built-in layout with the same id.
func LoadStationFile(path string) ([]weather.Station, map[string]Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var file StationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Stations) == 0 {
		return nil, nil, fmt.Errorf("%s: no stations defined", path)
	}

	stations := make([]weather.Station, 0, len(file.Stations))
	layouts := make(map[string]Layout, len(file.Stations))
	for i, spec := range file.Stations {
		if spec.ID == "" {
			return nil, nil, fmt.Errorf("%s: station %d has no obs_id", path, i)
		}
		if _, dup := layouts[spec.ID]; dup {
			return nil, nil, fmt.Errorf("%s: duplicate station %q", path, spec.ID)
		}
		if spec.TimeZone != "" {
			if _, err := time.LoadLocation(spec.TimeZone); err != nil {
				return nil, nil, fmt.Errorf("%s: station %q: %w", path, spec.ID, err)
			}
		}

		layout := Layout{StationID: spec.ID, LiveFile: spec.LiveFile, Columns: spec.Columns}
		if def, ok := DefaultLayouts[spec.ID]; ok {
			if layout.LiveFile == "" {
				layout.LiveFile = def.LiveFile
			}
			if len(layout.Columns) == 0 {
				layout.Columns = def.Columns
			}
		}
		if layout.LiveFile == "" || len(layout.Columns) == 0 {
			return nil, nil, fmt.Errorf("%s: station %q needs live_file and columns", path, spec.ID)
		}
		cols := make([]string, len(layout.Columns))
		for j, col := range layout.Columns {
			cols[j] = normalizeColumn(col)
		}
		layout.Columns = cols

		layouts[spec.ID] = layout
		stations = append(stations, weather.Station{
			ID:       spec.ID,
			Name:     spec.Name,
			Place:    spec.Location,
			TimeZone: spec.TimeZone,
			Lat:      spec.Lat,
			Lon:      spec.Lon,
		})
	}
	return stations, layouts, nil
}
