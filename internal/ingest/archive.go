package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// archivePatterns are the file types loggers rotate into archive folders.
var archivePatterns = []string{"*.txt", "*.dat"}

// ArchiveFiles lists the archive files of dir in name order.
func ArchiveFiles(dir string) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("archive folder: %w", err)
	}
	var files []string
	for _, pattern := range archivePatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// ReadArchiveFile parses every data line of path. A header line, when present,
// overrides the layout's column order for the rest of the file. Malformed lines
// are logged and skipped.
func ReadArchiveFile(ctx context.Context, path string, p *Parser, logger *slog.Logger) ([]weather.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []weather.Reading
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		if lineNum%1000 == 0 && ctx.Err() != nil {
			return out, ctx.Err()
		}
		line := sc.Text()
		if IsHeader(line) {
			p = p.WithHeader(line)
			continue
		}
		r, err := p.ParseLine(line)
		if errors.Is(err, ErrBlankLine) {
			continue
		}
		if err != nil {
			logger.Warn("skipping malformed line", "file", filepath.Base(path), "line", lineNum, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
