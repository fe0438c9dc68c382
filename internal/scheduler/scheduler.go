// Package scheduler runs the periodic calendar feed refresh.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "lifehub/internal/log"
)

// Scheduler wraps a cron runner with a single refresh job. Overlapping runs
// are skipped.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	refresh *Refresher
}

// New validates spec (standard 5-field cron or @descriptor) and registers
// the refresh job. Nothing runs until Start.
func New(spec string, loc *time.Location, r *Refresher) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, refresh: r}

	id, err := c.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("scheduler: bad refresh schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started", "next", s.Next().Format(time.RFC3339))
}

// Stop halts scheduling and waits for a running refresh to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out", ctx.Err())
	}
}

// Next is the next planned run.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow refreshes synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) []Report {
	return s.refresh.RefreshAll(ctx)
}

func (s *Scheduler) run() {
	s.refresh.RefreshAll(context.Background())
}

// cronLogger routes cron's own messages into the app log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
