// Package occurrence computes the next UTC firing instant for a calendar
// anniversary in an owner's timezone. It is pure: the reference instant is
// always supplied by the caller, never read from the wall clock.
package occurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rezkam/greet/internal/domain"
)

// TimeOfDay is the local wall-clock delivery time.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// DefaultDeliveryTime is 09:00:00 local.
var DefaultDeliveryTime = TimeOfDay{Hour: 9}

// ParseTimeOfDay parses an HH:MM:SS override.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("time of day must be HH:MM:SS, got %q", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("time of day must be HH:MM:SS, got %q", s)
		}
		vals[i] = v
	}
	tod := TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 || tod.Second < 0 || tod.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day out of range: %q", s)
	}
	return tod, nil
}

// String returns the HH:MM:SS form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Next returns the next UTC instant strictly after ref at which the owner's
// birthday wall time occurs in the given timezone.
//
// Policy decisions, fixed so tests can pin them:
//   - Feb 29 birthdays fall on Feb 28 in non-leap years (never Mar 1).
//   - A wall time erased by a spring-forward gap resolves to the instant
//     immediately after the gap.
//   - A wall time duplicated by a fall-back overlap resolves to the earlier
//     (pre-transition) occurrence.
func Next(dob domain.Date, tz domain.Timezone, tod TimeOfDay, ref time.Time) (time.Time, error) {
	loc, err := tz.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tz.String())
	}

	year := ref.In(loc).Year()
	for y := year; y <= year+1; y++ {
		day := dob.Day
		if dob.IsLeapDay() && !isLeapYear(y) {
			day = 28
		}
		instant := resolveWall(y, dob.Month, day, tod, loc)
		if instant.After(ref) {
			return instant.UTC(), nil
		}
	}
	// Unreachable: the anniversary in year+1 is always after ref.
	return time.Time{}, fmt.Errorf("no occurrence found after %s", ref.Format(time.RFC3339))
}

// ToUTC interprets a wall time in the given timezone and returns the UTC
// instant, applying the same gap and overlap policy as Next. If the input
// already carries the target location it is returned as-is in UTC, with no
// second shift.
func ToUTC(wall time.Time, tz domain.Timezone) (time.Time, error) {
	loc, err := tz.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tz.String())
	}
	if wall.Location().String() == loc.String() {
		return wall.UTC(), nil
	}
	tod := TimeOfDay{Hour: wall.Hour(), Minute: wall.Minute(), Second: wall.Second()}
	return resolveWall(wall.Year(), wall.Month(), wall.Day(), tod, loc).UTC(), nil
}

// Wall returns the local wall time of a UTC instant in the given timezone,
// used to populate the audit-only local timestamp column.
func Wall(instant time.Time, tz domain.Timezone) (time.Time, error) {
	loc, err := tz.Location()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, tz.String())
	}
	return instant.In(loc), nil
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// resolveWall maps a wall-clock time in loc to a single instant, handling
// DST gaps and overlaps deterministically.
func resolveWall(year int, month time.Month, day int, tod TimeOfDay, loc *time.Location) time.Time {
	wallUTC := time.Date(year, month, day, tod.Hour, tod.Minute, tod.Second, 0, time.UTC)

	// Probe the offsets in force around the target; a wall time maps to one
	// instant per distinct offset that round-trips to the same wall clock.
	var matches []time.Time
	for _, off := range probeOffsets(wallUTC, loc) {
		cand := wallUTC.Add(-time.Duration(off) * time.Second)
		if sameWall(cand.In(loc), wallUTC) {
			matches = append(matches, cand)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0]
	case 0:
		// Spring-forward gap: the wall time does not exist. Resolve to the
		// transition instant, i.e. the first instant after the gap.
		return gapEnd(wallUTC, loc)
	default:
		// Fall-back overlap: pick the earlier (pre-transition) instant.
		earliest := matches[0]
		for _, m := range matches[1:] {
			if m.Before(earliest) {
				earliest = m
			}
		}
		return earliest
	}
}

// probeOffsets returns the distinct zone offsets (seconds east of UTC) in
// force in loc within a day either side of the target.
func probeOffsets(wallUTC time.Time, loc *time.Location) []int {
	seen := map[int]bool{}
	var offsets []int
	for _, d := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, off := wallUTC.Add(d).In(loc).Zone()
		if !seen[off] {
			seen[off] = true
			offsets = append(offsets, off)
		}
	}
	return offsets
}

func sameWall(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day() &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}

// gapEnd finds the instant at which a spring-forward transition completes.
// The transition lies between the instants the skipped wall time would map
// to under the pre- and post-transition offsets; binary search to the second.
func gapEnd(wallUTC time.Time, loc *time.Location) time.Time {
	lo := wallUTC.Add(-14 * time.Hour) // max possible positive offset
	hi := wallUTC.Add(14 * time.Hour)
	_, loOff := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == loOff {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Truncate(time.Second)
}
