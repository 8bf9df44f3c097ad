package core

import (
	"fmt"
	"regexp"
	"time"
)

// Month identifies a calendar budget period. The canonical external
// form is "YYYY-MM", which sorts lexicographically in chronological
// order; the storage layer relies on that for month comparisons in
// SQL.
type Month struct {
	Year  int
	Month time.Month
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParseMonth parses a canonical "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	if !monthPattern.MatchString(s) {
		return Month{}, NewValidationError("month", fmt.Sprintf("invalid month format %q, want YYYY-MM", s))
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, NewValidationError("month", fmt.Sprintf("invalid month %q", s))
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf truncates a point in time to its calendar month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// String returns the canonical "YYYY-MM" form.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero reports whether m is the zero value.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// NextStart returns midnight UTC on the first day of the following
// month. Date windows are expressed as [Start, NextStart) so no
// end-of-month day arithmetic is ever needed.
func (m Month) NextStart() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return MonthOf(m.NextStart())
}

// Prev returns the preceding calendar month.
func (m Month) Prev() Month {
	return MonthOf(m.Start().AddDate(0, -1, 0))
}

// Compare orders two months chronologically: -1 if m is earlier than
// other, 0 if equal, +1 if later.
func (m Month) Compare(other Month) int {
	switch {
	case m.Year != other.Year:
		if m.Year < other.Year {
			return -1
		}
		return 1
	case m.Month != other.Month:
		if m.Month < other.Month {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool { return m.Compare(other) < 0 }

// After reports whether m is strictly later than other.
func (m Month) After(other Month) bool { return m.Compare(other) > 0 }

// MonthsBetween returns every month from start to end inclusive, in
// chronological order. Returns nil if end precedes start.
func MonthsBetween(start, end Month) []Month {
	if end.Before(start) {
		return nil
	}
	var months []Month
	for m := start; !m.After(end); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// Contains reports whether the given date falls inside the month.
func (m Month) Contains(t time.Time) bool {
	return MonthOf(t) == m
}
