// Package executor consumes claimed event descriptors from the work queue
// and drives each one to a terminal state through the webhook endpoint.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/queue"
	"github.com/rezkam/greet/internal/webhook"
)

// EventReader loads the current state of an event before any delivery attempt.
type EventReader interface {
	FindEventByID(ctx context.Context, id string) (*domain.Event, error)
}

// Finalizer commits terminal transitions. Implementations must re-read the
// event inside a transaction and use optimistic locking so a concurrent
// finalize surfaces as domain.ErrOptimisticLockConflict.
type Finalizer interface {
	// Complete marks the event COMPLETED and schedules the next occurrence.
	Complete(ctx context.Context, eventID string) error
	// Fail marks the event FAILED with the given reason. No successor is
	// scheduled; failures are resolved by operators.
	Fail(ctx context.Context, eventID, reason string) error
}

// Deliverer posts a delivery payload. Errors are classified by the webhook
// package: webhook.IsPermanent rules out retries.
type Deliverer interface {
	Deliver(ctx context.Context, idempotencyKey string, payload domain.DeliveryPayload) error
}

// Config tunes the executor's consumption and retry behavior.
type Config struct {
	// Concurrency is the number of goroutines receiving and processing.
	Concurrency int
	// RetryBackoffs are the waits before each retry of a transient webhook
	// failure. Attempts = 1 + len(RetryBackoffs).
	RetryBackoffs []time.Duration
	// LateExecutionGrace is how far past the target an execution may run
	// before it is logged as late. Late events are still delivered.
	LateExecutionGrace time.Duration
	// ReceiveWait is the long-poll duration per empty receive.
	ReceiveWait time.Duration
	// ReceiveBatch is the max messages fetched per receive.
	ReceiveBatch int
}

// Executor is the consuming half of the delivery pipeline.
type Executor struct {
	reader    EventReader
	finalizer Finalizer
	deliverer Deliverer
	queue     queue.Queue
	cfg       Config
	clock     clockwork.Clock
}

func New(reader EventReader, finalizer Finalizer, deliverer Deliverer, q queue.Queue, cfg Config, clock clockwork.Clock) *Executor {
	if cfg.ReceiveBatch <= 0 {
		cfg.ReceiveBatch = 10
	}
	return &Executor{
		reader:    reader,
		finalizer: finalizer,
		deliverer: deliverer,
		queue:     q,
		cfg:       cfg,
		clock:     clock,
	}
}

// Run receives and processes messages until the context is cancelled. Each
// goroutine runs its own receive loop; the queue arbitrates competing
// consumers.
func (e *Executor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.receiveLoop(ctx)
		}()
	}
	wg.Wait()
}

func (e *Executor) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := e.queue.Receive(ctx, e.cfg.ReceiveBatch, e.cfg.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "failed to receive from work queue", "error", err)
			e.sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			e.process(ctx, msg)
		}
	}
}

// process drives one delivery. The message is acknowledged only once the
// event is known to be terminal (or the descriptor is stale); leaving it
// unacknowledged hands the retry to the queue's redelivery policy.
func (e *Executor) process(ctx context.Context, msg queue.Message) {
	desc := msg.Descriptor
	log := slog.With("event_id", desc.EventID, "idempotency_key", desc.IdempotencyKey)

	event, err := e.reader.FindEventByID(ctx, desc.EventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		// Owner deletion cascades to events; the descriptor is stale.
		log.InfoContext(ctx, "event no longer exists, dropping descriptor")
		e.ack(ctx, msg)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to load event, leaving for redelivery", "error", err)
		return
	}

	if event.Status != domain.StatusProcessing {
		// Already finalized by an earlier delivery of this descriptor.
		log.InfoContext(ctx, "event already finalized, dropping descriptor", "status", event.Status)
		e.ack(ctx, msg)
		return
	}

	now := e.clock.Now().UTC()
	if lateBy := now.Sub(event.TargetTimestampUTC); lateBy > e.cfg.LateExecutionGrace {
		log.WarnContext(ctx, "executing event past its grace window",
			"original_target", event.TargetTimestampUTC,
			"actual_execution", now,
			"late_by", lateBy)
	}

	deliverErr := e.deliverWithRetries(ctx, desc.IdempotencyKey, event.Payload, log)
	switch {
	case deliverErr == nil:
		e.finalize(ctx, msg, log, func() error {
			return e.finalizer.Complete(ctx, desc.EventID)
		})
	case webhook.IsPermanent(deliverErr):
		log.WarnContext(ctx, "webhook rejected delivery permanently", "error", deliverErr)
		e.finalize(ctx, msg, log, func() error {
			return e.finalizer.Fail(ctx, desc.EventID, deliverErr.Error())
		})
	default:
		// Transient failures exhausted the retry budget. Leave the message
		// unacknowledged; the visibility timeout redelivers it, and the
		// dead-letter policy caps total attempts.
		log.WarnContext(ctx, "delivery attempts exhausted, leaving for redelivery",
			"receive_count", msg.ReceiveCount, "error", deliverErr)
	}
}

// deliverWithRetries attempts the webhook call, retrying transient failures
// after each configured backoff. The idempotency key is identical across
// attempts so the receiver can deduplicate.
func (e *Executor) deliverWithRetries(ctx context.Context, key string, payload domain.DeliveryPayload, log *slog.Logger) error {
	err := e.deliverer.Deliver(ctx, key, payload)
	for attempt := 0; err != nil && !webhook.IsPermanent(err) && attempt < len(e.cfg.RetryBackoffs); attempt++ {
		log.InfoContext(ctx, "retrying webhook delivery",
			"attempt", attempt+2, "backoff", e.cfg.RetryBackoffs[attempt], "error", err)
		if !e.sleep(ctx, e.cfg.RetryBackoffs[attempt]) {
			return fmt.Errorf("delivery interrupted: %w", ctx.Err())
		}
		err = e.deliverer.Deliver(ctx, key, payload)
	}
	return err
}

// finalize commits a terminal transition and acknowledges the message. A
// version conflict means another delivery finalized first; the message is
// acknowledged without error.
func (e *Executor) finalize(ctx context.Context, msg queue.Message, log *slog.Logger, commit func() error) {
	err := commit()
	if errors.Is(err, domain.ErrOptimisticLockConflict) {
		log.InfoContext(ctx, "event finalized concurrently, dropping descriptor")
		e.ack(ctx, msg)
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "failed to finalize event, leaving for redelivery", "error", err)
		return
	}
	e.ack(ctx, msg)
}

func (e *Executor) ack(ctx context.Context, msg queue.Message) {
	if err := e.queue.Ack(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to acknowledge message",
			"event_id", msg.Descriptor.EventID, "error", err)
	}
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return true
	}
}
