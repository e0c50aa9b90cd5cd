package engine

import (
	"sort"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar date (UTC)
// =============================================================================

// Date is a calendar date with day granularity. All engine arithmetic is
// done on normalized midnight-UTC values so two dates representing the same
// calendar day always compare equal.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func Today() Date {
	return DateOf(time.Now())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] date range.
type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within the period [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns all days in the period in order.
func (p Period) Days() []Date {
	var days []Date
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// Valid reports whether the period is well formed (end not before start).
func (p Period) Valid() bool { return !p.End.Before(p.Start) }

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// YearPeriod returns the calendar-year period for a year.
func YearPeriod(year int) Period {
	return Period{
		Start: NewDate(year, time.January, 1),
		End:   NewDate(year, time.December, 31),
	}
}

// MonthPeriod returns the calendar-month period for a year/month.
func MonthPeriod(year int, month time.Month) Period {
	start := NewDate(year, month, 1)
	end := Date{t: time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
	return Period{Start: start, End: end}
}

// =============================================================================
// DATE SET HELPERS
// =============================================================================

// SortDates returns a sorted copy of the given dates.
func SortDates(dates []Date) []Date {
	out := make([]Date, len(dates))
	copy(out, dates)
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// UniqueDates returns the distinct dates, sorted.
func UniqueDates(dates []Date) []Date {
	sorted := SortDates(dates)
	var out []Date
	for _, d := range sorted {
		if len(out) == 0 || !out[len(out)-1].Equal(d) {
			out = append(out, d)
		}
	}
	return out
}

// ContainsDate reports whether the set includes the given date.
func ContainsDate(dates []Date, d Date) bool {
	for _, e := range dates {
		if e.Equal(d) {
			return true
		}
	}
	return false
}

// SubtractDates returns the dates in a that are not in b, sorted.
func SubtractDates(a, b []Date) []Date {
	var out []Date
	for _, d := range SortDates(a) {
		if !ContainsDate(b, d) {
			out = append(out, d)
		}
	}
	return out
}

// IsSubset reports whether every date in sub is also in super.
func IsSubset(sub, super []Date) bool {
	for _, d := range sub {
		if !ContainsDate(super, d) {
			return false
		}
	}
	return true
}

// =============================================================================
// HOLIDAY CALENDAR - Organization-wide holidays
// =============================================================================

// Holiday is an organization-wide non-working day.
type Holiday struct {
	ID   string
	Date Date
	Name string
}

// HolidayCalendar provides holiday lookup for the coverage heat classifier.
type HolidayCalendar interface {
	IsHoliday(date Date) bool
}

// DefaultHolidayCalendar is a no-op calendar for when holidays are not loaded.
type DefaultHolidayCalendar struct{}

func (DefaultHolidayCalendar) IsHoliday(Date) bool { return false }

// StaticHolidayCalendar is a fixed set of holiday dates.
type StaticHolidayCalendar map[Date]Holiday

func (c StaticHolidayCalendar) IsHoliday(d Date) bool {
	_, ok := c[d]
	return ok
}

// NewStaticHolidayCalendar builds a calendar from a holiday list.
func NewStaticHolidayCalendar(holidays []Holiday) StaticHolidayCalendar {
	c := make(StaticHolidayCalendar, len(holidays))
	for _, h := range holidays {
		c[h.Date] = h
	}
	return c
}
