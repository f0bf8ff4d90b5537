package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rezkam/greet/internal/domain"
)

const ownerColumns = `id, first_name, last_name, date_of_birth, timezone, created_at, updated_at`

// CreateOwner inserts a new owner row.
func (q queries) CreateOwner(ctx context.Context, o *domain.Owner) error {
	dob := time.Date(o.DateOfBirth.Year, o.DateOfBirth.Month, o.DateOfBirth.Day, 0, 0, 0, 0, time.UTC)
	_, err := q.db.Exec(ctx, `
		INSERT INTO owners (id, first_name, last_name, date_of_birth, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.FirstName, o.LastName, dob, o.Timezone.String(), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner: %w", err)
	}
	return nil
}

// FindOwnerByID returns the owner or domain.ErrOwnerNotFound.
func (q queries) FindOwnerByID(ctx context.Context, id string) (*domain.Owner, error) {
	row := q.db.QueryRow(ctx, `SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id)
	o, err := scanOwner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOwnerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find owner: %w", err)
	}
	return o, nil
}

// UpdateOwner writes the mutable owner fields. Callers needing atomicity
// with event rescheduling run this inside WithTx alongside the event
// updates.
func (q queries) UpdateOwner(ctx context.Context, o *domain.Owner) error {
	dob := time.Date(o.DateOfBirth.Year, o.DateOfBirth.Month, o.DateOfBirth.Day, 0, 0, 0, 0, time.UTC)
	tag, err := q.db.Exec(ctx, `
		UPDATE owners SET first_name = $2, last_name = $3, date_of_birth = $4, timezone = $5, updated_at = $6
		WHERE id = $1`,
		o.ID, o.FirstName, o.LastName, dob, o.Timezone.String(), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOwnerNotFound, o.ID)
	}
	return nil
}

// DeleteOwner removes the owner; the schema cascades to the owner's events.
func (q queries) DeleteOwner(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM owners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOwnerNotFound, id)
	}
	return nil
}

func scanOwner(row pgx.Row) (*domain.Owner, error) {
	var (
		o   domain.Owner
		dob time.Time
		tz  string
	)
	if err := row.Scan(&o.ID, &o.FirstName, &o.LastName, &dob, &tz, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}

	o.DateOfBirth = domain.Date{Year: dob.Year(), Month: dob.Month(), Day: dob.Day()}
	timezone, err := domain.NewTimezone(tz)
	if err != nil {
		return nil, fmt.Errorf("stored timezone no longer valid: %w", err)
	}
	o.Timezone = timezone
	return &o, nil
}
