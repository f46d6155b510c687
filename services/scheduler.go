// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Scheduler runs the periodic round sweep and reminder jobs.
type Scheduler struct {
	sched gocron.Scheduler
}

type SchedulerConfig struct {
	Clock         clockwork.Clock
	SweepInterval time.Duration
	RemindEvery   time.Duration
}

// StartScheduler registers the sweep and reminder jobs and starts them. A nil reminder
// service skips the reminder job.
func StartScheduler(ctx context.Context, cfg SchedulerConfig, rounds *RoundService, reminders *ReminderService) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{}
	if cfg.Clock != nil {
		opts = append(opts, gocron.WithClock(cfg.Clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	// Expired rounds close even when nobody opens the dashboard.
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			closed, err := rounds.SweepExpired(ctx)
			if err != nil {
				log.Printf("[Scheduler] round sweep error: %v", err)
			}
			if closed > 0 {
				log.Printf("✅ [Scheduler] closed %d expired round(s)", closed)
			}
		}),
		gocron.WithName("round-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}

	if reminders != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(cfg.RemindEvery),
			gocron.NewTask(func() {
				if _, err := reminders.RunOnce(ctx); err != nil {
					log.Printf("[Scheduler] reminder run error: %v", err)
				}
			}),
			gocron.WithName("reminders"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}

	sched.Start()
	log.Printf("[Scheduler] started: sweep every %s, reminders every %s", cfg.SweepInterval, cfg.RemindEvery)
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		log.Printf("[Scheduler] shutdown error: %v", err)
	}
}
