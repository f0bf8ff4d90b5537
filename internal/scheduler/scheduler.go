// Package scheduler periodically claims due events and hands them to the
// work queue. It also runs the startup recovery sweep and the stuck-claim
// watchdog.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/queue"
)

// Store is the claiming surface the scheduler drives. ClaimReadyEvents is
// the atomicity boundary: a returned row is owned by this tick.
type Store interface {
	ClaimReadyEvents(ctx context.Context, limit int, now time.Time) ([]*domain.Event, error)
	FindMissedEvents(ctx context.Context, limit int, now time.Time) ([]*domain.Event, error)
	ReclaimStuckEvents(ctx context.Context, threshold time.Duration, now time.Time) (int64, error)
}

// Config tunes the tick cadence and batch sizes.
type Config struct {
	PollInterval       time.Duration
	ClaimBatchLimit    int
	RecoveryBatchLimit int
	// StuckClaimThreshold is how long a PROCESSING row may sit untouched
	// before the watchdog returns it to PENDING.
	StuckClaimThreshold time.Duration
	// WatchdogEveryTicks is how many ticks pass between watchdog runs.
	WatchdogEveryTicks int
}

// Scheduler owns the tick loop.
type Scheduler struct {
	store Store
	queue queue.Queue
	cfg   Config
	clock clockwork.Clock

	done chan struct{}
	wg   sync.WaitGroup

	eventsClaimed   metric.Int64Counter
	publishFailures metric.Int64Counter
	eventsRecovered metric.Int64Counter
	stuckReclaimed  metric.Int64Counter
}

func New(store Store, q queue.Queue, cfg Config, clock clockwork.Clock) *Scheduler {
	if cfg.WatchdogEveryTicks <= 0 {
		cfg.WatchdogEveryTicks = 5
	}
	meter := otel.Meter("github.com/rezkam/greet/internal/scheduler")
	eventsClaimed, _ := meter.Int64Counter("scheduler.events_claimed")
	publishFailures, _ := meter.Int64Counter("scheduler.publish_failures")
	eventsRecovered, _ := meter.Int64Counter("scheduler.events_recovered")
	stuckReclaimed, _ := meter.Int64Counter("scheduler.stuck_events_reclaimed")
	return &Scheduler{
		store:           store,
		queue:           q,
		cfg:             cfg,
		clock:           clock,
		done:            make(chan struct{}),
		eventsClaimed:   eventsClaimed,
		publishFailures: publishFailures,
		eventsRecovered: eventsRecovered,
		stuckReclaimed:  stuckReclaimed,
	}
}

// Start runs the recovery sweep, then ticks until the context is cancelled
// or Stop is called. A tick that overruns the poll interval is logged, not
// interrupted.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "scheduler started",
		"poll_interval", s.cfg.PollInterval,
		"claim_batch_limit", s.cfg.ClaimBatchLimit)

	// The sweep must not delay the first tick indefinitely; leftovers are
	// found by subsequent ticks anyway.
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := s.RecoverySweep(sweepCtx); err != nil {
		slog.ErrorContext(ctx, "recovery sweep failed", "error", err)
	}
	cancel()

	s.runTick(ctx, 1)

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for tickNo := int64(2); ; tickNo++ {
		select {
		case <-ticker.Chan():
			s.runTick(ctx, tickNo)
		case <-ctx.Done():
			slog.InfoContext(ctx, "scheduler context cancelled, shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-s.done:
			slog.InfoContext(ctx, "scheduler stopped")
			s.wg.Wait()
			return nil
		}
	}
}

// Stop gracefully stops the tick loop.
func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) runTick(ctx context.Context, tickNo int64) {
	s.wg.Add(1)
	defer s.wg.Done()

	// The poll interval is a cadence, not a deadline: a batch that overruns
	// it finishes and gets a warn log rather than being cancelled mid-publish.
	started := s.clock.Now()
	if err := s.Tick(ctx, started.UTC()); err != nil {
		slog.ErrorContext(ctx, "tick failed", "error", err)
	}
	if elapsed := s.clock.Since(started); elapsed > s.cfg.PollInterval {
		slog.WarnContext(ctx, "tick overran its interval", "elapsed", elapsed)
	}

	if tickNo%int64(s.cfg.WatchdogEveryTicks) == 0 {
		s.runWatchdog(ctx)
	}
}

// Tick claims due PENDING events and publishes their descriptors in claim
// order. A publish failure leaves the rows in PROCESSING; the watchdog or
// the queue's redrive brings them back. No local retry.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	claimed, err := s.store.ClaimReadyEvents(ctx, s.cfg.ClaimBatchLimit, now)
	if err != nil {
		return fmt.Errorf("failed to claim ready events: %w", err)
	}
	s.eventsClaimed.Add(ctx, int64(len(claimed)))
	if len(claimed) == 0 {
		return nil
	}

	descriptors := make([]queue.Descriptor, len(claimed))
	for i, e := range claimed {
		descriptors[i] = descriptorFor(e)
	}
	if err := s.queue.Publish(ctx, descriptors); err != nil {
		s.publishFailures.Add(ctx, int64(len(descriptors)))
		return fmt.Errorf("failed to publish %d descriptors: %w", len(descriptors), err)
	}

	slog.InfoContext(ctx, "claimed and published due events",
		"claimed", len(claimed),
		"oldest_target", claimed[0].TargetTimestampUTC)
	return nil
}

// RecoverySweep publishes descriptors for past-due PENDING events without
// claiming them. Deferring to the normal claim path keeps the atomic claim
// and optimistic-lock guarantees; a descriptor for a still-PENDING event is
// dropped by the executor and the row drains through the next tick.
func (s *Scheduler) RecoverySweep(ctx context.Context) error {
	now := s.clock.Now().UTC()
	missed, err := s.store.FindMissedEvents(ctx, s.cfg.RecoveryBatchLimit, now)
	if err != nil {
		return fmt.Errorf("failed to scan for missed events: %w", err)
	}
	if len(missed) == 0 {
		slog.InfoContext(ctx, "no missed events")
		return nil
	}

	descriptors := make([]queue.Descriptor, len(missed))
	for i, e := range missed {
		descriptors[i] = descriptorFor(e)
	}
	if err := s.queue.Publish(ctx, descriptors); err != nil {
		s.publishFailures.Add(ctx, int64(len(descriptors)))
		return fmt.Errorf("failed to publish recovery descriptors: %w", err)
	}

	s.eventsRecovered.Add(ctx, int64(len(missed)))
	slog.InfoContext(ctx, "recovered missed events",
		"count", len(missed),
		"oldest_target", missed[0].TargetTimestampUTC,
		"newest_target", missed[len(missed)-1].TargetTimestampUTC)
	return nil
}

// runWatchdog returns PROCESSING rows nobody has touched past the threshold
// to PENDING. Covers claims orphaned by a crash between claim and publish.
func (s *Scheduler) runWatchdog(ctx context.Context) {
	now := s.clock.Now().UTC()
	reclaimed, err := s.store.ReclaimStuckEvents(ctx, s.cfg.StuckClaimThreshold, now)
	if err != nil {
		slog.ErrorContext(ctx, "stuck claim watchdog failed", "error", err)
		return
	}
	if reclaimed > 0 {
		s.stuckReclaimed.Add(ctx, reclaimed)
		slog.WarnContext(ctx, "reclaimed stuck events",
			"count", reclaimed, "threshold", s.cfg.StuckClaimThreshold)
	}
}

func descriptorFor(e *domain.Event) queue.Descriptor {
	return queue.Descriptor{
		EventID:        e.ID,
		EventType:      string(e.Type),
		IdempotencyKey: e.IdempotencyKey,
		Metadata: queue.Metadata{
			OwnerID:            e.OwnerID,
			TargetTimestampUTC: e.TargetTimestampUTC,
			DeliveryPayload:    e.Payload,
		},
	}
}
