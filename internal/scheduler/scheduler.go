package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
)

const defaultInterval = 5 * time.Minute

// LiveIngester pulls the latest reading of every station.
type LiveIngester interface {
	IngestLive(ctx context.Context) map[string]error
}

// Scheduler periodically polls the stations' live files.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ingester  LiveIngester
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	lastRun Run
}

// Run summarizes one polling pass.
type Run struct {
	ID       string            `json:"id"`
	Started  time.Time         `json:"started"`
	Duration time.Duration     `json:"duration"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// New creates a new Scheduler. A non-positive interval falls back to five minutes.
func New(ingester LiveIngester, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		ingester:  ingester,
		interval:  interval,
		timeout:   interval,
		logger:    logger,
	}
}

// Start schedules the polling job and starts the underlying scheduler.
// The first pass runs immediately.
func (s *Scheduler) Start() error {
	if s.ingester == nil {
		s.logger.Warn("scheduler: no ingester configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "interval", s.interval)
	return nil
}

// AddTask schedules a periodic maintenance job next to the polling job.
func (s *Scheduler) AddTask(name string, every time.Duration, task func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	_, err := s.scheduler.Every(every).Tag(name).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), every)
		defer cancel()
		if err := task(ctx); err != nil {
			s.logger.Warn("scheduler: task failed", "task", name, "error", err)
		}
	})
	return err
}

// RunOnce performs a single polling pass bounded by the scheduler's timeout.
func (s *Scheduler) RunOnce(ctx context.Context) Run {
	run := Run{ID: uuid.NewString(), Started: time.Now().UTC()}
	log := s.logger.With("run_id", run.ID)
	log.Debug("scheduler: polling live files")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	errs := s.ingester.IngestLive(ctx)
	run.Duration = time.Since(run.Started)
	if len(errs) > 0 {
		run.Failed = make(map[string]string, len(errs))
		for id, err := range errs {
			run.Failed[id] = err.Error()
		}
		log.Warn("scheduler: poll finished with failures", "failed", len(errs), "duration", run.Duration)
	} else {
		log.Info("scheduler: poll finished", "duration", run.Duration)
	}

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
	return run
}

// LastRun returns the most recent completed pass, if any.
func (s *Scheduler) LastRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastRun.ID != ""
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
