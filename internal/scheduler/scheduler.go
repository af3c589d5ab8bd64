package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work, typically a full scrape.
type Job func(ctx context.Context) error

// Scheduler owns the main loop: runs the job once, then on every cron tick.
type Scheduler struct {
	spec    string
	job     Job
	logger  *slog.Logger
	running sync.Mutex
}

// New creates a scheduler for a standard five-field cron expression or a
// descriptor such as "@every 30m" or "@hourly".
func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, job: job, logger: logger}, nil
}

// Run starts the loop. It runs one immediate cycle, then fires on the
// schedule. It returns nil when ctx is cancelled (graceful shutdown), after
// any in-flight cycle has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cronLogger{s.logger}))
	id, err := c.AddFunc(s.spec, func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("scheduling %q: %w", s.spec, err)
	}

	c.Start()
	s.logger.Info("starting scheduler", "schedule", s.spec, "next_run", c.Entry(id).Next.Format(time.RFC3339))

	s.runOnce(ctx)

	<-ctx.Done()
	s.logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	return nil
}

// runOnce runs the job unless a previous cycle is still going.
func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.TryLock() {
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	s.logger.Info("scheduled run complete", "duration", time.Since(start).Round(time.Millisecond))
}

// cronLogger routes cron's own logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
