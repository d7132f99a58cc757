// Package dates holds the calendar arithmetic the rules depend on: shifting
// by whole calendar months with end-of-month clamping, and lenient parsing of
// the date formats that appear in reconciliation and aging metadata.
package dates

import (
	"strconv"
	"strings"
	"time"
)

// New returns a date at UTC midnight. All engine dates are day-granular.
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the final day of d's month.
func LastDayOfMonth(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// IsMonthEnd reports whether d is the last day of its month.
func IsMonthEnd(d time.Time) bool {
	return d.Day() == LastDayOfMonth(d).Day()
}

// AddMonths shifts d by the given number of calendar months (negative
// allowed), clamping the day to the target month's last day when the target
// month is shorter (Jan 31 + 1 month = Feb 28/29, Feb 28 - 2 months =
// Dec 28). Calendar months, not 30/60-day approximations, match the
// accounting reading of "older than N months".
func AddMonths(d time.Time, months int) time.Time {
	total := d.Year()*12 + int(d.Month()) - 1 + months
	year := total / 12
	month := time.Month(total%12 + 1)
	last := LastDayOfMonth(New(year, month, 1))
	day := d.Day()
	if day > last.Day() {
		day = last.Day()
	}
	return New(year, month, day)
}

// AddMonthsPreservingMonthEnd behaves like AddMonths except a month-end
// anchor stays on the month end (Jun 30 + 3 months = Sep 30, Sep 30 + 3
// months = Dec 31). Tax filing periods roll on statement-style month ends,
// so cadence arithmetic uses this variant.
func AddMonthsPreservingMonthEnd(d time.Time, months int) time.Time {
	shifted := AddMonths(d, months)
	if IsMonthEnd(d) {
		return LastDayOfMonth(shifted)
	}
	return shifted
}

// DaysBetween returns the whole days from start to end (end - start).
func DaysBetween(start, end time.Time) int {
	return int(end.Sub(start).Hours() / 24)
}

// SameDay reports whether a and b are the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Parse reads a day-granular date out of a free-form meta value. ISO
// YYYY-MM-DD is preferred; the DD/MM/YYYY form produced by reconciliation
// reports is also accepted. Returns false for anything else.
func Parse(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return New(v.Year(), v.Month(), v.Day()), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		if strings.Contains(s, "/") {
			return parseSlashed(s)
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, false
		}
		return New(t.Year(), t.Month(), t.Day()), true
	}
	return time.Time{}, false
}

func parseSlashed(s string) (time.Time, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	dd, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	yyyy, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if mm < 1 || mm > 12 || dd < 1 {
		return time.Time{}, false
	}
	candidate := New(yyyy, time.Month(mm), dd)
	if candidate.Day() != dd || candidate.Month() != time.Month(mm) || candidate.Year() != yyyy {
		return time.Time{}, false
	}
	return candidate, true
}

// Format renders a day-granular date as ISO YYYY-MM-DD; zero dates render
// as "".
func Format(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}
