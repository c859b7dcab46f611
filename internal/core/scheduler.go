package core

// scheduler.go runs the engine's background jobs:
//  1. payment expiry, which expires overdue pending payments and cancels
//     their registrations
//  2. outbox dispatch, which delivers pending notification events
//
// Each job runs in singleton mode; a slow run delays the next instead of
// overlapping it. Job failures are logged and never stop the scheduler.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SchedulerConfig holds job intervals. Zero intervals disable a job.
type SchedulerConfig struct {
	PaymentExpiryInterval time.Duration
	OutboxInterval        time.Duration
}

// Scheduler owns the background jobs.
type Scheduler struct {
	sched  gocron.Scheduler
	cancel context.CancelFunc
}

// StartScheduler registers and starts the background jobs. Jobs run
// immediately, then every interval, until Stop is called or ctx is done.
func (s *Service) StartScheduler(ctx context.Context, d *Dispatcher, cfg SchedulerConfig) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"payment-expiry", cfg.PaymentExpiryInterval, s.runExpiryJob},
		{"outbox-dispatch", cfg.OutboxInterval, d.runDispatchJob},
	}

	for _, j := range jobs {
		if j.interval <= 0 || (j.name == "outbox-dispatch" && d == nil) {
			continue
		}
		run := j.run
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() { run(ctx) }),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = sched.Shutdown()
			return nil, fmt.Errorf("schedule %s: %w", j.name, err)
		}
		slog.Info("job scheduled", "job", j.name, "interval", j.interval)
	}

	sched.Start()
	return &Scheduler{sched: sched, cancel: cancel}, nil
}

// Stop cancels running jobs and waits for them to return.
func (sc *Scheduler) Stop() error {
	sc.cancel()
	if err := sc.sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	slog.Info("scheduler stopped")
	return nil
}

func (s *Service) runExpiryJob(ctx context.Context) {
	start := time.Now()
	n, err := s.ExpirePendingPayments(ctx)
	if err != nil {
		slog.Error("payment expiry failed", "error", err)
		return
	}
	slog.Debug("payment expiry finished",
		"expired", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (d *Dispatcher) runDispatchJob(ctx context.Context) {
	stats, err := d.DispatchOnce(ctx)
	if err != nil {
		slog.Error("outbox dispatch failed", "error", err)
		return
	}
	if stats.Fetched > 0 {
		slog.Info("outbox dispatched",
			"fetched", stats.Fetched,
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"dead", stats.Dead,
		)
	}
}
