package occurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/greet/internal/domain"
)

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustZone(t *testing.T, name string) domain.Timezone {
	t.Helper()
	tz, err := domain.NewTimezone(name)
	require.NoError(t, err)
	return tz
}

func TestNext_BasicBirthday(t *testing.T) {
	// Owner born 1990-03-15 in New York, reference 2025-01-01.
	// 2025-03-15 is inside EDT, so 09:00 local is 13:00Z.
	dob := mustDate(t, "1990-03-15")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC), got)
}

func TestNext_RollsToNextYearWhenPassed(t *testing.T) {
	dob := mustDate(t, "1990-03-15")
	tz := mustZone(t, "America/New_York")
	// Reference is one second after this year's occurrence.
	ref := time.Date(2025, 3, 15, 13, 0, 1, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 15, 13, 0, 0, 0, time.UTC), got)
}

func TestNext_ExactInstantIsNotNext(t *testing.T) {
	// An occurrence equal to the reference instant has already fired.
	dob := mustDate(t, "1990-03-15")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
}

func TestNext_Feb29InNonLeapYear(t *testing.T) {
	dob := mustDate(t, "2000-02-29")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	// Feb 28, not Mar 1. EST, so 09:00 local is 14:00Z.
	assert.Equal(t, time.Date(2025, 2, 28, 14, 0, 0, 0, time.UTC), got)
}

func TestNext_Feb29InLeapYear(t *testing.T) {
	dob := mustDate(t, "2000-02-29")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2028, 2, 29, 14, 0, 0, 0, time.UTC), got)
}

func TestNext_SpringForwardDay(t *testing.T) {
	// 2024-03-10 is the US spring-forward date. 09:00 local exists and is
	// EDT, so the instant is 13:00Z, not 14:00Z.
	dob := mustDate(t, "1991-03-10")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC), got)
}

func TestNext_FallBackDay(t *testing.T) {
	// 2024-11-03 is the US fall-back date. 09:00 local is unambiguous EST.
	dob := mustDate(t, "1991-11-03")
	tz := mustZone(t, "America/New_York")
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 3, 14, 0, 0, 0, time.UTC), got)
}

func TestNext_GapWallTimeResolvesAfterGap(t *testing.T) {
	// 02:30 local on 2024-03-10 does not exist in New York; the clock jumps
	// from 02:00 EST to 03:00 EDT at 07:00Z. The instant immediately after
	// the gap is 07:00Z.
	dob := mustDate(t, "1991-03-10")
	tz := mustZone(t, "America/New_York")
	tod := TimeOfDay{Hour: 2, Minute: 30}
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, tod, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), got)
}

func TestNext_OverlapWallTimeResolvesEarlier(t *testing.T) {
	// 01:30 local on 2024-11-03 occurs twice in New York: 05:30Z (EDT) and
	// 06:30Z (EST). The earlier, pre-transition occurrence wins.
	dob := mustDate(t, "1991-11-03")
	tz := mustZone(t, "America/New_York")
	tod := TimeOfDay{Hour: 1, Minute: 30}
	ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, tod, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC), got)
}

func TestNext_Tokyo(t *testing.T) {
	// Japan has no DST: 09:00 JST is always 00:00Z.
	dob := mustDate(t, "2025-04-01")
	tz := mustZone(t, "Asia/Tokyo")
	ref := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)

	got, err := Next(dob, tz, DefaultDeliveryTime, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestToUTC_NoDoubleShift(t *testing.T) {
	tz := mustZone(t, "Asia/Tokyo")
	loc, err := tz.Location()
	require.NoError(t, err)

	// Already zone-aware: must not shift a second time.
	aware := time.Date(2025, 4, 1, 9, 0, 0, 0, loc)
	got, err := ToUTC(aware, tz)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), got)

	// Naive wall clock: interpreted in the target zone.
	naive := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	got, err = ToUTC(naive, tz)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:00:00", TimeOfDay{Hour: 9}, false},
		{"23:59:59", TimeOfDay{Hour: 23, Minute: 59, Second: 59}, false},
		{"00:00:00", TimeOfDay{}, false},
		{"24:00:00", TimeOfDay{}, true},
		{"09:00", TimeOfDay{}, true},
		{"nonsense", TimeOfDay{}, true},
	}
	for _, tc := range tests {
		got, err := ParseTimeOfDay(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got, tc.input)
	}
}

func TestNewTimezone_Invalid(t *testing.T) {
	for _, name := range []string{"", "Not/AZone", "Local", "EST5EDT4"} {
		_, err := domain.NewTimezone(name)
		assert.ErrorIs(t, err, domain.ErrInvalidTimezone, name)
	}
}
