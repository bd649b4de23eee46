package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/digkill/designforge/internal/events"
)

// DefaultRefillSchedule runs at midnight UTC on the first day of each month.
const DefaultRefillSchedule = "0 0 1 * *"

// Refiller tops subscriptions back up to their monthly allotment.
type Refiller interface {
	RefillMonthly(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refiller  Refiller
	publisher events.Publisher
	log       *slog.Logger
	schedule  string
	timeout   time.Duration
}

func New(refiller Refiller, publisher events.Publisher, log *slog.Logger, schedule string) *Scheduler {
	if schedule == "" {
		schedule = DefaultRefillSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		refiller:  refiller,
		publisher: publisher,
		log:       log,
		schedule:  schedule,
		timeout:   10 * time.Minute,
	}
}

// Start registers the refill job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunRefill(context.Background()) }); err != nil {
		return fmt.Errorf("schedule refill %q: %w", s.schedule, err)
	}
	s.log.Info("scheduled monthly refill job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

// RunRefill performs one refill pass and publishes the count.
func (s *Scheduler) RunRefill(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.refiller.RefillMonthly(ctx)
	if err != nil {
		s.log.Error("monthly refill failed", "refilled", n, "err", err)
		return n, err
	}
	s.log.Info("monthly refill complete", "refilled", n, "took", time.Since(start))

	if err := s.publisher.Publish(ctx, events.CreditsRefilled, events.RefillPayload{Users: n}); err != nil {
		s.log.Warn("publish refill event", "err", err)
	}
	return n, nil
}
