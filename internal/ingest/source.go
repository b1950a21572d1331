package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// ErrEmptySource is returned when a live file holds no data line.
var ErrEmptySource = errors.New("live file is empty")

// Source yields the latest line of a station's live file.
type Source interface {
	Name() string
	LastLine(ctx context.Context, file string) (string, error)
}

// tailSize bounds how much of a live file is read to find its last line.
const tailSize = 64 * 1024

// FileSource reads live files from a local directory.
type FileSource struct {
	Dir string
}

func (s FileSource) Name() string { return "file:" + s.Dir }

func (s FileSource) LastLine(_ context.Context, file string) (string, error) {
	f, err := os.Open(filepath.Join(s.Dir, file))
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - tailSize
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return lastLine(buf)
}

// HTTPSource fetches live files published under a base URL.
type HTTPSource struct {
	baseURL string
	fetch   *fetcher
}

// NewHTTPSource creates an HTTPSource with retry and circuit breaking.
func NewHTTPSource(client *http.Client, baseURL string) *HTTPSource {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "live-files",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetch: &fetcher{
			cfg: HTTPClientConfig{
				Client: client,
				Backoff: BackoffConfig{
					MaxRetries:      3,
					InitialInterval: 500 * time.Millisecond,
					MaxInterval:     5 * time.Second,
				},
			},
			breaker: cb,
		},
	}
}

func (s *HTTPSource) Name() string { return s.baseURL }

func (s *HTTPSource) LastLine(ctx context.Context, file string) (string, error) {
	body, err := s.fetch.get(ctx, s.baseURL+"/"+url.PathEscape(file))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", file, err)
	}
	return lastLine(body)
}

func lastLine(buf []byte) (string, error) {
	lines := bytes.Split(bytes.ReplaceAll(buf, []byte("\r\n"), []byte("\n")), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(string(lines[i])); line != "" {
			return line, nil
		}
	}
	return "", ErrEmptySource
}
