package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/guregu/null"

	"github.com/i474232898/weather-observatory/internal/weather"
)

// BadgerConfig holds BadgerDB configuration.
type BadgerConfig struct {
	// Path to store database files.
	Path string

	// InMemory mode (for testing).
	InMemory bool
}

// BadgerStore keeps readings in an embedded LSM tree, one key per
// (station, timestamp), so a station's history is one contiguous key range.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB backed reading store.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithLogger(nil).
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(16 << 20).
		WithBlockCacheSize(8 << 20).
		WithIndexCacheSize(4 << 20).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// SaveReadings writes readings in one transaction; existing keys are kept.
func (s *BadgerStore) SaveReadings(ctx context.Context, readings []weather.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for i, r := range readings {
			if i%100 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			if !r.HasTimestamp() {
				continue
			}

			key := readingKey(r.StationID, r.Timestamp)
			if _, err := txn.Get(key); err == nil {
				continue
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			r.Timestamp = r.Timestamp.UTC()
			value, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to encode reading: %w", err)
			}
			if err := txn.Set(key, value); err != nil {
				return fmt.Errorf("failed to write reading: %w", err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// Latest returns the most recent reading for a station.
func (s *BadgerStore) Latest(_ context.Context, stationID string) (weather.Reading, error) {
	var out weather.Reading
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = stationPrefix(stationID)

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(readingKeyRaw(opts.Prefix, ^uint64(0)))
		if !it.Valid() {
			return nil
		}
		r, err := decodeReading(it.Item())
		if err != nil {
			return err
		}
		if r.StationID != stationID {
			return nil
		}
		out, found = r, true
		return nil
	})
	if err != nil {
		return weather.Reading{}, err
	}
	if !found {
		return weather.Reading{}, ErrNotFound
	}
	return out, nil
}

// LatestAll returns the most recent reading of every station, ordered by station id.
func (s *BadgerStore) LatestAll(ctx context.Context) ([]weather.Reading, error) {
	out := make([]weather.Reading, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse order visits each station's newest key first.
		var last []byte
		for it.Rewind(); it.Valid(); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			prefix := it.Item().Key()[:8]
			if last != nil && string(prefix) == string(last) {
				continue
			}
			last = append(last[:0], prefix...)

			r, err := decodeReading(it.Item())
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

// Range returns all readings for a station between from and to (inclusive).
func (s *BadgerStore) Range(ctx context.Context, stationID string, from, to time.Time) ([]weather.Reading, error) {
	out := make([]weather.Reading, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = stationPrefix(stationID)

		it := txn.NewIterator(opts)
		defer it.Close()

		end := readingKey(stationID, to)
		n := 0
		for it.Seek(readingKey(stationID, from)); it.Valid(); it.Next() {
			n++
			if n%1000 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			if string(it.Item().Key()) > string(end) {
				break
			}
			r, err := decodeReading(it.Item())
			if err != nil {
				return err
			}
			if r.StationID == stationID {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RunGC reclaims value log space. Having nothing to collect is not an error.
func (s *BadgerStore) RunGC(_ context.Context) error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close shuts down BadgerDB cleanly.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Keys are [xxhash(station) 8 bytes][timestamp 8 bytes], with the timestamp's
// sign bit flipped so pre-1970 instants still sort before later ones.
func stationPrefix(stationID string) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(stationID))
	return prefix
}

func readingKey(stationID string, ts time.Time) []byte {
	return readingKeyRaw(stationPrefix(stationID), uint64(ts.UnixNano())^(1<<63))
}

func readingKeyRaw(prefix []byte, ts uint64) []byte {
	key := make([]byte, 16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[8:], ts)
	return key
}

func decodeReading(item *badger.Item) (weather.Reading, error) {
	var r weather.Reading
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	if err != nil {
		return weather.Reading{}, fmt.Errorf("failed to decode reading: %w", err)
	}
	if r.Values == nil {
		r.Values = make(map[weather.Metric]null.Float)
	}
	return r, nil
}
