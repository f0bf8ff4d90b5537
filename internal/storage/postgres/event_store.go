package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/greet/internal/domain"
)

const eventColumns = `id, owner_id, event_type, target_ts_utc, target_local, target_timezone,
       status, version, idempotency_key, payload, executed_at, failure_reason,
       retry_count, created_at, updated_at`

// CreateEvent inserts a new event row. A collision on the idempotency key
// unique index surfaces as domain.ErrDuplicateIdempotencyKey.
func (q queries) CreateEvent(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO events (
			id, owner_id, event_type, target_ts_utc, target_local, target_timezone,
			status, version, idempotency_key, payload, retry_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.OwnerID, string(e.Type), e.TargetTimestampUTC, e.TargetLocal, e.TargetTimezone,
		string(e.Status), e.Version, e.IdempotencyKey, payload, e.RetryCount, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_events_idempotency_key") {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// FindEventByID returns the event or domain.ErrEventNotFound.
func (q queries) FindEventByID(ctx context.Context, id string) (*domain.Event, error) {
	row := q.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return e, nil
}

// FindEventsByOwner returns the owner's events, optionally filtered to the
// given statuses, ordered by target instant.
func (q queries) FindEventsByOwner(ctx context.Context, ownerID string, statuses ...domain.EventStatus) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE owner_id = $1`
	args := []any{ownerID}

	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			args = append(args, string(s))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY target_ts_utc ASC"

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// UpdateEvent writes all mutable fields if and only if the stored version
// matches e.Version, then increments the version (mirrored on e). A stale
// version returns domain.ErrOptimisticLockConflict; a missing row returns
// domain.ErrEventNotFound.
func (q queries) UpdateEvent(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	tag, err := q.db.Exec(ctx, `
		UPDATE events SET
			target_ts_utc = $3, target_local = $4, target_timezone = $5,
			status = $6, idempotency_key = $7, payload = $8, executed_at = $9,
			failure_reason = $10, retry_count = $11, updated_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		e.ID, e.Version,
		e.TargetTimestampUTC, e.TargetLocal, e.TargetTimezone,
		string(e.Status), e.IdempotencyKey, payload, e.ExecutedAt,
		e.FailureReason, e.RetryCount, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_events_idempotency_key") {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdempotencyKey, e.IdempotencyKey)
		}
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check event existence: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: event %s version %d", domain.ErrOptimisticLockConflict, e.ID, e.Version)
		}
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, e.ID)
	}

	e.Version++
	return nil
}

// FindMissedEvents returns up to limit PENDING events whose target instant
// is strictly before now, oldest first. Read-only; no locks taken, so the
// recovery sweep cannot contend with a concurrent claim.
func (q queries) FindMissedEvents(ctx context.Context, limit int, now time.Time) ([]*domain.Event, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status = $1 AND target_ts_utc < $2
		ORDER BY target_ts_utc ASC
		LIMIT $3`,
		string(domain.StatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find missed events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// DeleteEventsByOwner removes all of an owner's events. Owner deletion also
// cascades at the schema level; this is for callers operating on events
// directly.
func (q queries) DeleteEventsByOwner(ctx context.Context, ownerID string) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM events WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// ClaimReadyEvents atomically claims up to limit due PENDING events: inside
// one transaction it selects them oldest-first with FOR UPDATE SKIP LOCKED,
// transitions them to PROCESSING, and bumps their versions. Rows locked by a
// concurrent claimer are skipped, never waited on. Runs on the pool, not
// inside a caller transaction.
func (s *Store) ClaimReadyEvents(ctx context.Context, limit int, now time.Time) ([]*domain.Event, error) {
	var claimed []*domain.Event

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status = $1 AND target_ts_utc <= $2
		ORDER BY target_ts_utc ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED`,
		string(domain.StatusPending), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable events: %w", err)
	}
	claimed, err = collectEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]string, len(claimed))
	for i, e := range claimed {
		ids[i] = e.ID
	}

	_, err = tx.Exec(ctx, `
		UPDATE events SET status = $1, version = version + 1, updated_at = $2
		WHERE id = ANY($3)`,
		string(domain.StatusProcessing), now, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark events as processing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	for _, e := range claimed {
		e.Status = domain.StatusProcessing
		e.Version++
		e.UpdatedAt = now
	}
	return claimed, nil
}

// ReclaimStuckEvents reverts PROCESSING rows whose updated_at is older than
// the threshold back to PENDING, so a scheduler crash between claim commit
// and queue publish cannot strand an event forever. Returns the number of
// rows reclaimed.
func (s *Store) ReclaimStuckEvents(ctx context.Context, threshold time.Duration, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET status = $1, version = version + 1, updated_at = $2
		WHERE status = $3 AND updated_at < $4`,
		string(domain.StatusPending), now,
		string(domain.StatusProcessing), now.Add(-threshold),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stuck events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var events []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var (
		e         domain.Event
		eventType string
		status    string
		payload   []byte
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &eventType, &e.TargetTimestampUTC, &e.TargetLocal, &e.TargetTimezone,
		&status, &e.Version, &e.IdempotencyKey, &payload, &e.ExecutedAt, &e.FailureReason,
		&e.RetryCount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = domain.EventType(eventType)
	e.Status = domain.EventStatus(status)
	e.TargetTimestampUTC = e.TargetTimestampUTC.UTC()
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &e, nil
}
