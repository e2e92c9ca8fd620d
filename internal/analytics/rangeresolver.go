package analytics

import (
	"strconv"
	"strings"
	"time"
)

// Range tokens understood by ResolveRange. A four digit year is accepted as well.
const (
	RangeMonth       = "month"
	RangeThreeMonths = "3m"
	RangeSixMonths   = "6m"
	RangeAll         = "all"
)

// Range is an inclusive interval of civil dates.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the civil date d falls inside the range.
func (r Range) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns the number of calendar days covered by the range.
func (r Range) Days() int {
	return daysBetween(r.Start, r.End) + 1
}

// ResolveRange turns a symbolic range token into a concrete interval.
//
//	"month"   first day of now's month through now
//	"3m"/"6m" now minus three or six months through now
//	"YYYY"    January 1 through December 31 of that year
//	"all"     earliest through latest dated session, or "month" without any
//
// Unknown tokens resolve like "month". Undated sessions are ignored by "all".
func ResolveRange(token string, sessions []Session, now time.Time) Range {
	today := Civil(now)
	token = strings.ToLower(strings.TrimSpace(token))

	switch token {
	case RangeThreeMonths:
		return Range{Start: addMonths(today, -3), End: today}
	case RangeSixMonths:
		return Range{Start: addMonths(today, -6), End: today}
	case RangeAll:
		if r, ok := sessionSpan(sessions); ok {
			return r
		}
		return monthToDate(today)
	}

	if year, ok := parseYear(token); ok {
		return Range{
			Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		}
	}
	return monthToDate(today)
}

func monthToDate(today time.Time) Range {
	return Range{Start: firstOfMonth(today), End: today}
}

func parseYear(token string) (int, bool) {
	if len(token) != 4 {
		return 0, false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(token)
	return year, err == nil
}

func sessionSpan(sessions []Session) (Range, bool) {
	var r Range
	found := false
	for _, s := range sessions {
		if !s.Dated {
			continue
		}
		if !found {
			r = Range{Start: s.Date, End: s.Date}
			found = true
			continue
		}
		if s.Date.Before(r.Start) {
			r.Start = s.Date
		}
		if s.Date.After(r.End) {
			r.End = s.Date
		}
	}
	return r, found
}
