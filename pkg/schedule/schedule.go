// Package schedule triggers the source fan-out on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"meridian/pkg/logger"
)

// DefaultSpec fires every 15 minutes.
const DefaultSpec = "*/15 * * * *"

const fanOutTimeout = 5 * time.Minute

// FanOuter enqueues one job per source.
type FanOuter interface {
	FanOut(ctx context.Context) (int, error)
}

// Scheduler runs FanOut on a standard five-field cron expression. Overlapping runs are skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	spec     string
	fanOut   FanOuter
	log      logger.Logger
	ctx      context.Context
}

// New parses spec and prepares a scheduler. It does not start it.
func New(spec string, f FanOuter, log logger.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if log == nil {
		log = logger.NewNop()
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}

	cl := cronLogger{log: log}
	c := cron.New(cron.WithParser(parser), cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	s := &Scheduler{cron: c, schedule: schedule, spec: spec, fanOut: f, log: log, ctx: context.Background()}
	c.Schedule(schedule, cron.FuncJob(s.trigger))
	return s, nil
}

// Next is the first trigger time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs the scheduler in the background. Triggers stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("Fan-out schedule started",
		logger.String("schedule", s.spec), logger.String("next_run", s.Next(time.Now()).Format(time.RFC3339)))
}

// Stop halts the scheduler and waits for a running trigger to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("Fan-out schedule stopped")
}

func (s *Scheduler) trigger() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, fanOutTimeout)
	defer cancel()

	start := time.Now()
	jobs, err := s.fanOut.FanOut(ctx)
	if err != nil {
		s.log.Error("Scheduled fan-out failed", logger.Int("jobs", jobs), logger.Error(err))
		return
	}
	s.log.Info("Scheduled fan-out finished", logger.Int("jobs", jobs), logger.Duration("elapsed", time.Since(start)))
}
