package materializer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/occurrence"
)

// Reason tags why a materialization happened; used for logging only, the
// semantics are carried by the method called.
type Reason string

const (
	ReasonCreated         Reason = "created"
	ReasonBirthdayChanged Reason = "birthdayChanged"
	ReasonTimezoneChanged Reason = "timezoneChanged"
	ReasonSuccessor       Reason = "successorOfCompleted"
)

// EventStore is the slice of the store the materializer mutates. Callers
// that need atomicity with other writes pass a transaction-bound store.
type EventStore interface {
	CreateEvent(ctx context.Context, e *domain.Event) error
	FindEventsByOwner(ctx context.Context, ownerID string, statuses ...domain.EventStatus) ([]*domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error
}

// Materializer computes target instants via the registered strategies and
// writes event rows. It is stateless apart from the injected clock.
type Materializer struct {
	registry *Registry
	clock    clockwork.Clock
}

// New builds a Materializer.
func New(registry *Registry, clock clockwork.Clock) *Materializer {
	return &Materializer{registry: registry, clock: clock}
}

// Materialize inserts a fresh PENDING event of the given type for the owner,
// targeted at the next occurrence after now. Used for reason=created (inside
// the owner-create transaction) and reason=successorOfCompleted (inside the
// predecessor's finalize transaction).
func (m *Materializer) Materialize(ctx context.Context, store EventStore, owner *domain.Owner, eventType domain.EventType, reason Reason) (*domain.Event, error) {
	strategy, err := m.registry.Lookup(eventType)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now().UTC()
	target, err := strategy.NextOccurrence(owner, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute next occurrence: %w", err)
	}

	local, err := occurrence.Wall(target, owner.Timezone)
	if err != nil {
		return nil, err
	}

	event := &domain.Event{
		ID:                 uuid.NewString(),
		OwnerID:            owner.ID,
		Type:               eventType,
		TargetTimestampUTC: target,
		TargetLocal:        local,
		TargetTimezone:     owner.Timezone.String(),
		Status:             domain.StatusPending,
		Version:            0,
		IdempotencyKey:     strategy.IdempotencyKey(owner.ID, target),
		Payload:            strategy.ComposePayload(owner),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "materialized event",
		"event_id", event.ID,
		"owner_id", owner.ID,
		"event_type", eventType,
		"reason", reason,
		"target_utc", target,
		"target_timezone", event.TargetTimezone)

	return event, nil
}

// Reschedule recomputes targets for the owner's PENDING events after a
// birthday or timezone change. Events in PROCESSING or a terminal state are
// left untouched; a delivery in flight is never redirected. Callers run this
// inside the same transaction as the owner mutation so both commit or roll
// back together.
func (m *Materializer) Reschedule(ctx context.Context, store EventStore, owner *domain.Owner, reason Reason) error {
	pending, err := store.FindEventsByOwner(ctx, owner.ID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to load pending events: %w", err)
	}

	now := m.clock.Now().UTC()
	for _, event := range pending {
		strategy, err := m.registry.Lookup(event.Type)
		if err != nil {
			return err
		}

		target, err := strategy.NextOccurrence(owner, now)
		if err != nil {
			return fmt.Errorf("failed to compute next occurrence: %w", err)
		}
		local, err := occurrence.Wall(target, owner.Timezone)
		if err != nil {
			return err
		}

		event.TargetTimestampUTC = target
		event.TargetLocal = local
		event.TargetTimezone = owner.Timezone.String()
		event.IdempotencyKey = strategy.IdempotencyKey(owner.ID, target)
		event.UpdatedAt = now

		// The unique index tolerates this update when the "collision" is the
		// row being updated itself; any other collision surfaces as
		// ErrDuplicateIdempotencyKey.
		if err := store.UpdateEvent(ctx, event); err != nil {
			return err
		}

		slog.InfoContext(ctx, "rescheduled event",
			"event_id", event.ID,
			"owner_id", owner.ID,
			"reason", reason,
			"target_utc", target,
			"target_timezone", event.TargetTimezone)
	}

	return nil
}
