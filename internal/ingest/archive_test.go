package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-observatory/internal/weather"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "2025-07-02.txt", "")
	writeFile(t, dir, "2025-07-01.dat", "")
	writeFile(t, dir, "notes.csv", "")

	files, err := ArchiveFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "2025-07-01.dat")
	assert.Contains(t, files[1], "2025-07-02.txt")

	_, err = ArchiveFiles(dir + "/nope")
	assert.Error(t, err)
}

func TestReadArchiveFile_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "day.txt", "Timestamp,TempOut(C),HumOut\n"+
		"2025-07-01 10:00:00,20,50\n"+
		"\n"+
		"# power cycle\n"+
		"2025-07-01 10:05\n"+
		"2025-07-01 10:10:00,22,NA\n")

	p := NewParser(DefaultLayouts["ahm"], time.UTC)
	readings, err := ReadArchiveFile(context.Background(), dir+"/day.txt", p, discardLogger())
	require.NoError(t, err)
	require.Len(t, readings, 2)

	v, ok := readings[1].Value(weather.MetricTemperature)
	require.True(t, ok)
	assert.Equal(t, 22.0, v)
	_, ok = readings[1].Value(weather.MetricHumidity)
	assert.False(t, ok)
}
