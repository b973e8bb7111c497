package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler triggers the configured jobs once a day at a local wall time.
type Scheduler struct {
	runner  *JobRunner
	jobs    []JobSpec
	dailyAt string
	loc     *time.Location
	logger  logrus.FieldLogger
	tick    time.Duration
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner *JobRunner, jobs []JobSpec, dailyAt string, loc *time.Location, logger logrus.FieldLogger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		runner:  runner,
		jobs:    jobs,
		dailyAt: dailyAt,
		loc:     loc,
		logger:  logger,
		tick:    time.Minute,
	}
}

// Start begins the scheduler loop and returns when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil || len(s.jobs) == 0 {
		return
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(s.loc)
			if !s.shouldRun(local) {
				continue
			}
			day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
			if day.Equal(lastRun) {
				continue
			}
			lastRun = day
			s.logger.WithFields(logrus.Fields{"event": "mis_schedule_fire", "jobs": len(s.jobs)}).Info("running scheduled jobs")
			s.runner.RunJobs(ctx, s.jobs)
		}
	}
}

func (s *Scheduler) shouldRun(local time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return local.Hour() == hour && local.Minute() == minute
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
