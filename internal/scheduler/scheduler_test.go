package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingIngester struct {
	calls atomic.Int32
	errs  map[string]error
}

func (c *countingIngester) IngestLive(ctx context.Context) map[string]error {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return map[string]error{"ctx": errors.New("missing deadline")}
	}
	return c.errs
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce_RecordsFailures(t *testing.T) {
	ing := &countingIngester{errs: map[string]error{"udi": errors.New("timeout")}}
	s := New(ing, time.Minute, quietLogger())

	_, ok := s.LastRun()
	assert.False(t, ok)

	run := s.RunOnce(context.Background())
	_, err := uuid.Parse(run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"udi": "timeout"}, run.Failed)

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, run.ID, last.ID)
}

func TestStart_RunsImmediately(t *testing.T) {
	ing := &countingIngester{}
	s := New(ing, time.Hour, quietLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		_, ok := s.LastRun()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	last, _ := s.LastRun()
	assert.Empty(t, last.Failed)
	assert.GreaterOrEqual(t, ing.calls.Load(), int32(1))
}

func TestNew_DefaultsInterval(t *testing.T) {
	s := New(&countingIngester{}, 0, nil)
	assert.Equal(t, defaultInterval, s.interval)
}

func TestAddTask(t *testing.T) {
	s := New(&countingIngester{}, time.Hour, quietLogger())

	var runs atomic.Int32
	require.NoError(t, s.AddTask("gc", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("nothing to collect")
	}))
	assert.Error(t, s.AddTask("bad", 0, func(context.Context) error { return nil }))

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}
