package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null"

	"github.com/i474232898/weather-observatory/internal/common"
	"github.com/i474232898/weather-observatory/internal/weather"
)

var (
	ErrBlankLine = errors.New("blank or comment line")
	ErrShortLine = errors.New("not enough values in line")
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// Parser turns one station's comma separated lines into readings.
type Parser struct {
	stationID string
	columns   []string
	loc       *time.Location
}

// NewParser builds a parser for layout whose timestamps are local to loc.
func NewParser(layout Layout, loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{stationID: layout.StationID, columns: layout.Columns, loc: loc}
}

// IsHeader reports whether line looks like a column header rather than data.
func IsHeader(line string) bool {
	return common.HasAny(strings.ToLower(line), "timestamp", "tempout", "temp_out")
}

// WithHeader returns a parser that reads columns in the order named by header.
func (p *Parser) WithHeader(header string) *Parser {
	cols := strings.Split(header, ",")
	for i := range cols {
		cols[i] = normalizeColumn(cols[i])
	}
	return &Parser{stationID: p.stationID, columns: cols, loc: p.loc}
}

// ParseLine parses a single line. An unparseable timestamp yields a reading
// with a zero Timestamp; unusable values are recorded as absent.
func (p *Parser) ParseLine(line string) (weather.Reading, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return weather.Reading{}, ErrBlankLine
	}

	values := strings.Split(line, ",")
	if len(values) < len(p.columns) {
		return weather.Reading{}, fmt.Errorf("%w: got %d, want %d", ErrShortLine, len(values), len(p.columns))
	}

	r := weather.NewReading(p.stationID, time.Time{})
	for i, col := range p.columns {
		raw := strings.TrimSpace(values[i])
		if isTimestampColumn(col) {
			r.Timestamp = p.parseTimestamp(raw)
			continue
		}
		m, ok := MetricForColumn(col)
		if !ok {
			continue
		}
		if v, ok := parseValue(m, raw); ok {
			r.Set(m, v)
		} else {
			r.Values[m] = null.Float{}
		}
	}
	return r, nil
}

func (p *Parser) parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func parseValue(m weather.Metric, raw string) (float64, bool) {
	if common.IsMissing(raw) {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		return v, true
	}
	if m == weather.MetricWindDirection {
		return weather.CompassDegrees(raw)
	}
	return 0, false
}
