package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to EventStatus
		allowed  bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
		{StatusFailed, StatusCompleted, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionTo_RejectsIllegalEdge(t *testing.T) {
	e := &Event{ID: "ev-1", Status: StatusPending}

	err := e.TransitionTo(StatusCompleted)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StatusPending, e.Status, "status must not change on rejected transition")

	require.NoError(t, e.TransitionTo(StatusProcessing))
	require.NoError(t, e.TransitionTo(StatusCompleted))
	assert.ErrorIs(t, e.TransitionTo(StatusFailed), ErrIllegalTransition)
}

func TestCompleteAndFail(t *testing.T) {
	now := time.Date(2025, 3, 15, 13, 0, 30, 0, time.UTC)

	e := &Event{Status: StatusProcessing}
	require.NoError(t, e.Complete(now))
	assert.Equal(t, StatusCompleted, e.Status)
	require.NotNil(t, e.ExecutedAt)
	assert.Equal(t, now, *e.ExecutedAt)

	f := &Event{Status: StatusProcessing}
	require.NoError(t, f.Fail("webhook returned 400", now))
	assert.Equal(t, StatusFailed, f.Status)
	require.NotNil(t, f.FailureReason)
	assert.Contains(t, *f.FailureReason, "400")
}

func TestIdempotencyKeyDeterminism(t *testing.T) {
	target := time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC)

	k1 := IdempotencyKey("owner-1", target)
	k2 := IdempotencyKey("owner-1", target)
	assert.Equal(t, k1, k2, "equal inputs must produce equal keys")
	assert.Regexp(t, `^event-[0-9a-f]{16}$`, k1)

	// Different owner or instant changes the key.
	assert.NotEqual(t, k1, IdempotencyKey("owner-2", target))
	assert.NotEqual(t, k1, IdempotencyKey("owner-1", target.Add(time.Second)))

	// The instant is normalized to UTC before hashing.
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, k1, IdempotencyKey("owner-1", target.In(loc)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("1990-03-15")
	require.NoError(t, err)
	assert.Equal(t, 1990, d.Year)
	assert.Equal(t, time.March, d.Month)
	assert.Equal(t, 15, d.Day)
	assert.Equal(t, "1990-03-15", d.String())
	assert.False(t, d.IsLeapDay())

	leap, err := ParseDate("2000-02-29")
	require.NoError(t, err)
	assert.True(t, leap.IsLeapDay())

	for _, bad := range []string{"1990-13-01", "1990-02-30", "15-03-1990", "not-a-date"} {
		_, err := ParseDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}

func TestOwnerFullName(t *testing.T) {
	o := Owner{FirstName: "John", LastName: "Doe"}
	assert.Equal(t, "John Doe", o.FullName())

	mononym := Owner{FirstName: "Prince"}
	assert.Equal(t, "Prince", mononym.FullName())
}
