package database

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/database/repositories"
)

// RetentionJob periodically deletes alert events older than the retention
// period
type RetentionJob struct {
	repo      repositories.AlertEventRepository
	retention time.Duration
	logger    *logrus.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewRetentionJob creates a retention job. A non-positive retention keeps
// events forever and RunOnce becomes a no-op.
func NewRetentionJob(repo repositories.AlertEventRepository, retention time.Duration, logger *logrus.Logger) *RetentionJob {
	return &RetentionJob{
		repo:      repo,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce purges events older than now minus the retention period
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	return j.repo.PurgeBefore(ctx, j.now().Add(-j.retention))
}

// Start schedules the purge. The schedule uses standard cron syntax or a
// descriptor such as "@hourly".
func (j *RetentionJob) Start(schedule string) error {
	if j.retention <= 0 {
		j.logger.Info("Alert event retention disabled, keeping all events")
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			j.logger.WithError(err).Warn("Alert event retention purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	c.Start()
	j.cron = c

	j.logger.WithFields(logrus.Fields{
		"schedule":  schedule,
		"retention": j.retention,
	}).Info("Alert event retention scheduled")
	return nil
}

// Stop halts the schedule and waits for a running purge to finish
func (j *RetentionJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}
