// Package scheduler runs a job on a fixed interval until stopped.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"

	"weather-rain-pipeline/pkg/logging"
)

// Job is one scheduled run. The context is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler runs a Job immediately and then every interval. A run that is
// still going when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	job       Job
	logger    *logging.StructuredLogger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new Scheduler
func New(interval time.Duration, job Job, logger *logging.StructuredLogger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		interval:  interval,
		job:       job,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return errors.New("schedule interval must be positive")
	}

	_, err := s.scheduler.Every(s.interval).Do(s.run)
	if err != nil {
		return err
	}

	s.logger.Info(s.ctx, "[SCHEDULER_START] Scheduled job registered", logging.Fields{
		"interval": s.interval.String(),
	})
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	started := time.Now()
	s.logger.Info(s.ctx, "[SCHEDULER_RUN] Running scheduled job", logging.Fields{})

	if err := s.job(s.ctx); err != nil {
		s.logger.Error(s.ctx, "[SCHEDULER_RUN_ERROR] Scheduled job failed", logging.Fields{
			"duration_seconds": time.Since(started).Seconds(),
		}, err)
		return
	}

	s.logger.Info(s.ctx, "[SCHEDULER_RUN_COMPLETE] Scheduled job finished", logging.Fields{
		"duration_seconds": time.Since(started).Seconds(),
	})
}

// Stop cancels a running job and waits for the scheduler to halt.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
	s.logger.Info(context.Background(), "[SCHEDULER_STOP] Scheduler stopped", logging.Fields{})
}
