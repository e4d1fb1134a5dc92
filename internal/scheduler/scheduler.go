// Package scheduler runs periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single run of any job.
const jobTimeout = time.Minute

// Job is one unit of maintenance work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron.Cron. Jobs never overlap with themselves: a run
// that is still going when the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Scheduler. Schedules use the standard five-field cron
// syntax plus descriptors such as "@every 10m" or "@hourly".
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.Recover(cronLogger{logger})),
		),
		logger: logger,
	}
}

// Add registers job under name. It fails on an unparsable schedule.
func (s *Scheduler) Add(schedule, name string, job Job) error {
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.logger})).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Debug("scheduled job finished",
			slog.String("job", name),
			slog.Duration("duration", time.Since(start)),
		)
	}))

	if _, err := s.cron.AddJob(schedule, wrapped); err != nil {
		return fmt.Errorf("scheduler: adding job %q with schedule %q: %w", name, schedule, err)
	}
	return nil
}

// cronLogger routes cron's own messages (recovered panics, skipped ticks)
// into slog. Routine scheduling chatter goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	level := slog.LevelDebug
	if msg == "skip" {
		level = slog.LevelWarn
		msg = "scheduled job still running; tick skipped"
	}
	l.logger.Log(context.Background(), level, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]any{slog.String("error", err.Error())}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs, giving up when ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; jobs still running")
	}
}
