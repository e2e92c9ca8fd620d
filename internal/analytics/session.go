// Package analytics turns a snapshot of swim and run sessions into calendar
// heatmaps, monthly totals, personal records and month-over-month comparisons.
//
// Every function in this package is a pure function of its arguments: there is
// no I/O, no clock access and no shared mutable state. Raw records enter through
// NormalizeSession (or NewSession) and only normalized Session values flow into
// the aggregations.
package analytics

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the activity type of a session.
type Type string

const (
	TypeSwim Type = "swim"
	TypeRun  Type = "run"
)

// ParseType maps a raw type value onto a known Type. Anything that is not
// recognisably a run, including an empty value, is a swim.
func ParseType(raw string) Type {
	if strings.EqualFold(strings.TrimSpace(raw), string(TypeRun)) {
		return TypeRun
	}
	return TypeSwim
}

// RawSession is a session exactly as an upstream deserializer handed it over.
type RawSession struct {
	ID       string
	Date     string
	Distance string
	Type     string
}

// Session is the normalized, strictly typed form consumed by the engine.
type Session struct {
	ID string
	// Date is the civil date at midnight UTC. It is only meaningful when Dated is set.
	Date     time.Time
	Dated    bool
	Distance float64
	Type     Type
}

// Key returns the YYYY-MM-DD key of the session date, or "" for undated sessions.
func (s Session) Key() string {
	if !s.Dated {
		return ""
	}
	return DateKey(s.Date)
}

// NormalizeSession coerces a raw record into a Session. Unparseable distances
// become 0, unknown types become swim and an unparseable date leaves the
// session undated. It never fails.
func NormalizeSession(raw RawSession) Session {
	date, ok := ParseDate(raw.Date)
	return Session{
		ID:       strings.TrimSpace(raw.ID),
		Date:     date,
		Dated:    ok,
		Distance: ParseDistance(raw.Distance),
		Type:     ParseType(raw.Type),
	}
}

// NewSession builds a Session from already typed values, applying the same
// coercion rules as NormalizeSession. A zero date leaves the session undated.
func NewSession(id string, date time.Time, distance float64, typ string) Session {
	s := Session{
		ID:       id,
		Distance: cleanDistance(distance),
		Type:     ParseType(typ),
	}
	if !date.IsZero() {
		s.Date = Civil(date)
		s.Dated = true
	}
	return s
}

// NormalizeAll normalizes a batch of raw records, preserving order.
func NormalizeAll(raws []RawSession) []Session {
	out := make([]Session, 0, len(raws))
	for _, raw := range raws {
		out = append(out, NormalizeSession(raw))
	}
	return out
}

// CountUndated reports how many sessions are excluded from date-keyed aggregation.
func CountUndated(sessions []Session) int {
	n := 0
	for _, s := range sessions {
		if !s.Dated {
			n++
		}
	}
	return n
}

// ParseDistance parses a distance in meters, returning 0 for anything that is
// not a finite non-negative number.
func ParseDistance(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return cleanDistance(value)
}

func cleanDistance(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0
	}
	return value
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// ParseDate parses a calendar date, ignoring any time-of-day component. Values
// carrying an offset keep the civil date they were written in. When no layout
// matches, a leading YYYY-MM-DD prefix is accepted as a best effort.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Civil(t), true
		}
	}
	if len(raw) > len("2006-01-02") {
		if t, err := time.Parse("2006-01-02", raw[:len("2006-01-02")]); err == nil {
			return Civil(t), true
		}
	}
	return time.Time{}, false
}
