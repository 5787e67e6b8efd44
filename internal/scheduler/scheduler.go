// Package scheduler runs named housekeeping jobs on cron schedules.
//
// Expressions use the standard 5-field form (min, hour, dom, month, dow) or a descriptor
// such as "@hourly" or "@every 5m".
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of scheduled work. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler creates and starts a scheduler. A panicking job is logged and the
// schedule keeps running.
func NewScheduler() *Scheduler {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start()
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel}
}

// Validate reports whether expr is an accepted schedule.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// AddJob schedules job under name. It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, job Job) error {
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		job(s.ctx)
		slog.Debug("Scheduler job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", expr, name, err)
	}
	slog.Info("Scheduler job added", "job", name, "schedule", expr)
	return nil
}

// Stop cancels running jobs' context and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's internal logging to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("Scheduler "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("Scheduler "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
