// Package dates parses and normalizes calendar dates. Service and effective
// dates carry no time of day and are kept at UTC midnight.
package dates

import (
	"fmt"
	"strings"
	"time"
)

const Layout = "2006-01-02"

// Parse accepts "2006-01-02" or RFC 3339 and returns the UTC calendar date.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(Layout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// Day truncates t to its calendar date in t's own location, expressed in UTC.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders a date as YYYY-MM-DD, or "" for the zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(Layout)
}

// YearBounds returns the first and last calendar day of year.
func YearBounds(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}
