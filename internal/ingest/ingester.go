package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// archiveBatch caps how many readings are written per store call during imports.
const archiveBatch = 500

// Sink persists parsed readings. *weather.Service satisfies it.
type Sink interface {
	Ingest(ctx context.Context, readings []weather.Reading) (int, error)
}

// Ingester pulls station files from a Source and hands the readings to a Sink.
type Ingester struct {
	sink     Sink
	source   Source
	stations []weather.Station
	layouts  map[string]Layout
	logger   *slog.Logger

	mu       sync.Mutex
	lastLine map[string]uint64 // checksum of the last stored live line per station
}

// NewIngester creates an Ingester. Stations without a layout are ignored.
func NewIngester(sink Sink, source Source, stations []weather.Station, layouts map[string]Layout, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	var known []weather.Station
	for _, st := range stations {
		if _, ok := layouts[st.ID]; !ok {
			logger.Warn("no logger layout for station; skipping", "station", st.ID)
			continue
		}
		known = append(known, st)
	}
	return &Ingester{
		sink:     sink,
		source:   source,
		stations: known,
		layouts:  layouts,
		logger:   logger,
		lastLine: make(map[string]uint64),
	}
}

// IngestLive reads every station's live file concurrently. A failing station
// does not stop the others; its error is returned keyed by station id.
func (in *Ingester) IngestLive(ctx context.Context) map[string]error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[string]error)
	)

	for _, st := range in.stations {
		st := st
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := in.IngestStationLive(ctx, st.ID); err != nil {
				in.logger.Warn("live ingest failed", "station", st.ID, "source", in.source.Name(), "error", err)
				mu.Lock()
				errs[st.ID] = err
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errs
}

// IngestStationLive stores the latest line of one station's live file.
func (in *Ingester) IngestStationLive(ctx context.Context, stationID string) error {
	_, layout, err := in.lookup(stationID)
	if err != nil {
		return err
	}

	line, err := in.source.LastLine(ctx, layout.LiveFile)
	if err != nil {
		return err
	}
	return in.IngestLine(ctx, stationID, line)
}

// IngestLine parses and stores one live line of a station. A line identical
// to the previously stored one is not parsed again.
func (in *Ingester) IngestLine(ctx context.Context, stationID, line string) error {
	st, layout, err := in.lookup(stationID)
	if err != nil {
		return err
	}
	line = strings.TrimSpace(line)
	if IsHeader(line) {
		return ErrEmptySource
	}
	sum := xxhash.Sum64String(line)
	if in.unchanged(stationID, sum) {
		in.logger.Debug("live line unchanged", "station", stationID)
		return nil
	}

	r, err := NewParser(layout, st.Loc()).ParseLine(line)
	if err != nil {
		return fmt.Errorf("parse live line: %w", err)
	}
	if !r.HasTimestamp() {
		return fmt.Errorf("parse live line: unreadable timestamp")
	}

	n, err := in.sink.Ingest(ctx, []weather.Reading{r})
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.lastLine[stationID] = sum
	in.mu.Unlock()
	in.logger.Debug("live reading ingested", "station", stationID, "reading_ts", r.Timestamp, "inserted", n)
	return nil
}

// IngestArchive imports every archive file of dir for one station and returns
// the number of new readings stored.
func (in *Ingester) IngestArchive(ctx context.Context, stationID, dir string) (int, error) {
	st, layout, err := in.lookup(stationID)
	if err != nil {
		return 0, err
	}

	files, err := ArchiveFiles(dir)
	if err != nil {
		return 0, err
	}
	parser := NewParser(layout, st.Loc())

	total := 0
	for _, path := range files {
		readings, err := ReadArchiveFile(ctx, path, parser, in.logger)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		for start := 0; start < len(readings); start += archiveBatch {
			end := min(start+archiveBatch, len(readings))
			n, err := in.sink.Ingest(ctx, readings[start:end])
			if err != nil {
				return total, err
			}
			total += n
		}
		in.logger.Info("archive file imported", "station", stationID, "file", filepath.Base(path), "lines", len(readings))
	}
	return total, nil
}

func (in *Ingester) unchanged(stationID string, sum uint64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	prev, ok := in.lastLine[stationID]
	return ok && prev == sum
}

func (in *Ingester) lookup(stationID string) (weather.Station, Layout, error) {
	layout, ok := in.layouts[stationID]
	if !ok {
		return weather.Station{}, Layout{}, fmt.Errorf("%w: %q", weather.ErrUnknownStation, stationID)
	}
	for _, st := range in.stations {
		if st.ID == stationID {
			return st, layout, nil
		}
	}
	return weather.Station{}, Layout{}, fmt.Errorf("%w: %q", weather.ErrUnknownStation, stationID)
}
