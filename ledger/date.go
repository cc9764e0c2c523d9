package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar-day granularity (the engine never cares about clocks)
// =============================================================================

// Date is a calendar day in UTC. Grant dates, expiry dates and join
// dates are all whole days; keeping them as a dedicated type avoids
// accidental time-of-day comparisons.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date  { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) AddYears(n int) Date { return DateOf(d.Time.AddDate(n, 0, 0)) }

// AddMonthsClamped adds n months, clamping the day to the last day of
// the target month instead of letting it roll over. Jan 31 + 1 month
// is Feb 28 (or 29), not Mar 2. Monthly grant anchors for members who
// joined on the 31st depend on this.
func (d Date) AddMonthsClamped(n int) Date {
	year, month, day := d.Time.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := lastDayOfMonth(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

// YearsSince returns calendar-approximate years of service between two
// dates, using a 365.25-day year. Not leap-exact; policy tiers only
// need whole-year resolution.
func (d Date) YearsSince(from Date) float64 {
	return d.Time.Sub(from.Time).Hours() / 24 / 365.25
}

// DaysBetween returns the whole-day difference to - from.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}
