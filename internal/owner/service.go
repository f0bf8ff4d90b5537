// Package owner implements the CRUD operations around owners and keeps
// their scheduled events consistent with every mutation.
package owner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/materializer"
	"github.com/rezkam/greet/internal/storage/postgres"
)

// Store is the persistence surface the service needs. WithTx runs fn
// against a transaction-scoped store; owner mutations and their event
// updates must land atomically.
type Store interface {
	CreateOwner(ctx context.Context, o *domain.Owner) error
	FindOwnerByID(ctx context.Context, id string) (*domain.Owner, error)
	UpdateOwner(ctx context.Context, o *domain.Owner) error
	DeleteOwner(ctx context.Context, id string) error
	CreateEvent(ctx context.Context, e *domain.Event) error
	FindEventsByOwner(ctx context.Context, ownerID string, statuses ...domain.EventStatus) ([]*domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// PostgresStore adapts *postgres.Store to the Store interface.
type PostgresStore struct {
	*postgres.Store
}

func (s PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Store.WithTx(ctx, func(tx *postgres.Store) error {
		return fn(PostgresStore{tx})
	})
}

// Service coordinates owner CRUD with event materialization.
type Service struct {
	store        Store
	materializer *materializer.Materializer
	clock        clockwork.Clock
}

func NewService(store Store, m *materializer.Materializer, clock clockwork.Clock) *Service {
	return &Service{store: store, materializer: m, clock: clock}
}

// CreateParams carries the validated-at-the-edge inputs for a new owner.
type CreateParams struct {
	FirstName   string
	LastName    string
	DateOfBirth string
	Timezone    string
}

// UpdateParams carries partial updates; nil fields are left unchanged.
type UpdateParams struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *string
	Timezone    *string
}

// Create stores the owner and materializes their first birthday event in
// one transaction.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.Owner, error) {
	dob, err := domain.ParseDate(params.DateOfBirth)
	if err != nil {
		return nil, err
	}
	tz, err := domain.NewTimezone(params.Timezone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	owner := &domain.Owner{
		ID:          uuid.NewString(),
		FirstName:   params.FirstName,
		LastName:    params.LastName,
		DateOfBirth: dob,
		Timezone:    tz,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.store.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateOwner(ctx, owner); err != nil {
			return err
		}
		_, err := s.materializer.Materialize(ctx, tx, owner, domain.EventTypeBirthday, materializer.ReasonCreated)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create owner: %w", err)
	}

	slog.InfoContext(ctx, "owner created", "owner_id", owner.ID, "timezone", owner.Timezone.String())
	return owner, nil
}

// Update applies the partial changes and, when the birthday or timezone
// moved, reschedules the owner's pending events in the same transaction.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*domain.Owner, error) {
	var updated *domain.Owner
	err := s.store.WithTx(ctx, func(tx Store) error {
		owner, err := tx.FindOwnerByID(ctx, id)
		if err != nil {
			return err
		}

		var reason materializer.Reason
		if params.FirstName != nil {
			owner.FirstName = *params.FirstName
		}
		if params.LastName != nil {
			owner.LastName = *params.LastName
		}
		if params.DateOfBirth != nil {
			dob, err := domain.ParseDate(*params.DateOfBirth)
			if err != nil {
				return err
			}
			if dob != owner.DateOfBirth {
				owner.DateOfBirth = dob
				reason = materializer.ReasonBirthdayChanged
			}
		}
		if params.Timezone != nil {
			tz, err := domain.NewTimezone(*params.Timezone)
			if err != nil {
				return err
			}
			if tz.String() != owner.Timezone.String() {
				owner.Timezone = tz
				reason = materializer.ReasonTimezoneChanged
			}
		}

		owner.UpdatedAt = s.clock.Now().UTC()
		if err := tx.UpdateOwner(ctx, owner); err != nil {
			return err
		}
		if reason != "" {
			if err := s.materializer.Reschedule(ctx, tx, owner, reason); err != nil {
				return err
			}
		}
		updated = owner
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the owner; the events table cascades on the foreign key.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteOwner(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "owner deleted", "owner_id", id)
	return nil
}

// Get returns the owner by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Owner, error) {
	return s.store.FindOwnerByID(ctx, id)
}

// ListEvents returns the owner's events, optionally filtered by status.
// The owner is looked up first so a missing owner surfaces as not-found
// rather than an empty list.
func (s *Service) ListEvents(ctx context.Context, id string, statuses ...domain.EventStatus) ([]*domain.Event, error) {
	if _, err := s.store.FindOwnerByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.FindEventsByOwner(ctx, id, statuses...)
}
