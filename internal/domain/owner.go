package domain

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar date with no timezone attached. A date of birth is a
// calendar fact; it only becomes an instant once paired with a timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String returns the ISO form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

// IsLeapDay reports whether the date is Feb 29.
func (d Date) IsLeapDay() bool {
	return d.Month == time.February && d.Day == 29
}

// Timezone is a validated IANA timezone identifier.
type Timezone struct {
	name string
}

// NewTimezone validates the name against the IANA database.
func NewTimezone(name string) (Timezone, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return Timezone{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	if _, err := time.LoadLocation(name); err != nil {
		return Timezone{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return Timezone{name: name}, nil
}

// String returns the IANA name.
func (tz Timezone) String() string {
	return tz.name
}

// Location resolves the timezone to a *time.Location. The name was validated
// at construction, so failure here means the tzdb changed underneath us.
func (tz Timezone) Location() (*time.Location, error) {
	return time.LoadLocation(tz.name)
}

// Owner is the snapshot of an event owner consumed by the core. The CRUD
// surface owns its full representation; the core reads only these fields.
type Owner struct {
	ID          string
	FirstName   string
	LastName    string
	DateOfBirth Date
	Timezone    Timezone
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName returns the display name used in delivery messages.
func (o Owner) FullName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}
