package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/domain"
	"github.com/rezkam/greet/internal/materializer"
	"github.com/rezkam/greet/internal/storage/postgres"
)

// TxFinalizer commits terminal transitions in a single transaction: the
// status flip and the successor event land together or not at all.
type TxFinalizer struct {
	store        *postgres.Store
	materializer *materializer.Materializer
	clock        clockwork.Clock
}

func NewTxFinalizer(store *postgres.Store, m *materializer.Materializer, clock clockwork.Clock) *TxFinalizer {
	return &TxFinalizer{store: store, materializer: m, clock: clock}
}

// Complete re-reads the event, marks it COMPLETED with the current time, and
// materializes the next occurrence for the owner. If the owner was deleted
// in the meantime the cascade already removed the event and there is nothing
// to do.
func (f *TxFinalizer) Complete(ctx context.Context, eventID string) error {
	return f.store.WithTx(ctx, func(tx *postgres.Store) error {
		event, err := tx.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.StatusProcessing {
			return domain.ErrOptimisticLockConflict
		}
		if err := event.Complete(f.clock.Now().UTC()); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return err
		}

		owner, err := tx.FindOwnerByID(ctx, event.OwnerID)
		if errors.Is(err, domain.ErrOwnerNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load owner for successor: %w", err)
		}
		if _, err := f.materializer.Materialize(ctx, tx, owner, event.Type, materializer.ReasonSuccessor); err != nil {
			return fmt.Errorf("failed to materialize successor: %w", err)
		}
		return nil
	})
}

// Fail re-reads the event and marks it FAILED with the reason. No successor
// is created; a failed year stays visible until an operator intervenes.
func (f *TxFinalizer) Fail(ctx context.Context, eventID, reason string) error {
	return f.store.WithTx(ctx, func(tx *postgres.Store) error {
		event, err := tx.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status != domain.StatusProcessing {
			return domain.ErrOptimisticLockConflict
		}
		if err := event.Fail(reason, f.clock.Now().UTC()); err != nil {
			return err
		}
		return tx.UpdateEvent(ctx, event)
	})
}
