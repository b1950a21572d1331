package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guregu/null"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// SQLiteStore keeps readings in a single `readings` table, one nullable
// column per canonical metric, keyed by (obs_id, reading_ts).
type SQLiteStore struct {
	db      *sql.DB
	metrics []weather.Metric
	columns string
}

// OpenSQLite opens a file-backed database, creating its directory when needed.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// busy_timeout helps with "database is locked" while the scheduler writes.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// NewSQLiteStore wraps db and creates the schema if it is missing.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	metrics := weather.AllMetrics()
	cols := make([]string, 0, len(metrics))
	for _, m := range metrics {
		cols = append(cols, string(m))
	}
	s := &SQLiteStore{
		db:      db,
		metrics: metrics,
		columns: strings.Join(cols, ", "),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS readings (\n  obs_id TEXT NOT NULL,\n  reading_ts INTEGER NOT NULL,\n")
	for _, m := range s.metrics {
		fmt.Fprintf(&b, "  %s REAL,\n", m)
	}
	b.WriteString("  PRIMARY KEY (obs_id, reading_ts)\n);")

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("create readings table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(reading_ts)`); err != nil {
		return fmt.Errorf("create readings index: %w", err)
	}
	return nil
}

// SaveReadings inserts readings in one transaction; existing rows are kept.
func (s *SQLiteStore) SaveReadings(ctx context.Context, readings []weather.Reading) (inserted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("rollback readings insert", "error", rbErr)
			}
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(s.metrics)+2), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO readings (obs_id, reading_ts, %s) VALUES (%s)", s.columns, placeholders))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if !r.HasTimestamp() {
			continue
		}
		args := make([]any, 0, len(s.metrics)+2)
		args = append(args, r.StationID, r.Timestamp.UnixNano())
		for _, m := range s.metrics {
			v, ok := r.Value(m)
			args = append(args, null.NewFloat(v, ok))
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert reading %s@%s: %w", r.StationID, r.Timestamp.Format(time.RFC3339), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// Latest returns the most recent reading for a station.
func (s *SQLiteStore) Latest(ctx context.Context, stationID string) (weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT obs_id, reading_ts, %s FROM readings WHERE obs_id = ? ORDER BY reading_ts DESC LIMIT 1", s.columns), stationID)
	if err != nil {
		return weather.Reading{}, err
	}
	out, err := s.scan(rows)
	if err != nil {
		return weather.Reading{}, err
	}
	if len(out) == 0 {
		return weather.Reading{}, ErrNotFound
	}
	return out[0], nil
}

// LatestAll returns the most recent reading of every station, ordered by station id.
func (s *SQLiteStore) LatestAll(ctx context.Context) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT r.obs_id, r.reading_ts, %s FROM readings r
JOIN (
  SELECT obs_id, MAX(reading_ts) AS max_ts FROM readings GROUP BY obs_id
) t ON t.obs_id = r.obs_id AND t.max_ts = r.reading_ts
ORDER BY r.obs_id`, prefixed("r.", s.metrics)))
	if err != nil {
		return nil, err
	}
	return s.scan(rows)
}

// Range returns all readings for a station between from and to (inclusive).
func (s *SQLiteStore) Range(ctx context.Context, stationID string, from, to time.Time) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT obs_id, reading_ts, %s FROM readings WHERE obs_id = ? AND reading_ts >= ? AND reading_ts <= ? ORDER BY reading_ts",
		s.columns), stationID, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	return s.scan(rows)
}

func (s *SQLiteStore) scan(rows *sql.Rows) ([]weather.Reading, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close readings rows", "error", err)
		}
	}()

	out := make([]weather.Reading, 0)
	values := make([]null.Float, len(s.metrics))
	for rows.Next() {
		var (
			obsID string
			ts    int64
		)
		dest := make([]any, 0, len(s.metrics)+2)
		dest = append(dest, &obsID, &ts)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		r := weather.NewReading(obsID, time.Unix(0, ts).UTC())
		for i, m := range s.metrics {
			r.Values[m] = values[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func prefixed(prefix string, metrics []weather.Metric) string {
	cols := make([]string, 0, len(metrics))
	for _, m := range metrics {
		cols = append(cols, prefix+string(m))
	}
	return strings.Join(cols, ", ")
}
