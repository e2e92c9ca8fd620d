package analytics

import (
	"sort"
	"time"
)

// BestSession is the longest single session of one type.
type BestSession struct {
	ID       string
	Date     time.Time
	Dated    bool
	Distance float64
	Type     Type
}

// Dominance names which activity carried a week.
type Dominance string

const (
	DominanceSwim  Dominance = "swim"
	DominanceRun   Dominance = "run"
	DominanceMixed Dominance = "mixed"
)

// BestWeek is the calendar week with the highest total distance.
type BestWeek struct {
	WeekStart time.Time
	Total     float64
	SwimTotal float64
	RunTotal  float64
}

// Dominant reports the type with the strictly larger share of the week, or mixed on a tie.
func (w BestWeek) Dominant() Dominance {
	switch {
	case w.SwimTotal > w.RunTotal:
		return DominanceSwim
	case w.RunTotal > w.SwimTotal:
		return DominanceRun
	default:
		return DominanceMixed
	}
}

// BestStreak is the longest run of consecutive active days.
type BestStreak struct {
	Start      time.Time
	End        time.Time
	LengthDays int
	SwimCount  int
	RunCount   int
}

// Records groups the personal records of a session set. A nil field means there
// is no data for it, which is a valid result and not a failure.
type Records struct {
	BestSwim   *BestSession
	BestRun    *BestSession
	BestWeek   *BestWeek
	BestStreak *BestStreak
	// Skipped counts undated sessions left out of the week and streak scans.
	Skipped int
}

// ComputeRecords scans the sessions for the best swim, best run, best week and
// longest streak. Ties resolve to the earliest date.
func ComputeRecords(sessions []Session) Records {
	return Records{
		BestSwim:   bestSession(sessions, TypeSwim),
		BestRun:    bestSession(sessions, TypeRun),
		BestWeek:   bestWeek(sessions),
		BestStreak: bestStreak(sessions),
		Skipped:    CountUndated(sessions),
	}
}

// bestSession keeps the longest session of typ. Undated sessions compete on
// distance but lose ties to dated ones; remaining ties keep input order.
func bestSession(sessions []Session, typ Type) *BestSession {
	var best *Session
	for i := range sessions {
		s := &sessions[i]
		if s.Type != typ {
			continue
		}
		if best == nil || beats(*s, *best) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	return &BestSession{
		ID:       best.ID,
		Date:     best.Date,
		Dated:    best.Dated,
		Distance: best.Distance,
		Type:     best.Type,
	}
}

func beats(candidate, current Session) bool {
	if candidate.Distance != current.Distance {
		return candidate.Distance > current.Distance
	}
	if candidate.Dated != current.Dated {
		return candidate.Dated
	}
	return candidate.Dated && candidate.Date.Before(current.Date)
}

func bestWeek(sessions []Session) *BestWeek {
	weeks := make(map[time.Time]*BestWeek)
	for _, s := range sessions {
		if !s.Dated {
			continue
		}
		start := StartOfWeek(s.Date)
		w, ok := weeks[start]
		if !ok {
			w = &BestWeek{WeekStart: start}
			weeks[start] = w
		}
		w.Total += s.Distance
		if s.Type == TypeRun {
			w.RunTotal += s.Distance
		} else {
			w.SwimTotal += s.Distance
		}
	}

	var best *BestWeek
	for _, w := range weeks {
		if best == nil || w.Total > best.Total || (w.Total == best.Total && w.WeekStart.Before(best.WeekStart)) {
			best = w
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func bestStreak(sessions []Session) *BestStreak {
	buckets, _ := BucketByDay(sessions)
	if len(buckets) == 0 {
		return nil
	}

	days := make([]time.Time, 0, len(buckets))
	for key := range buckets {
		d, _ := time.Parse(dateKeyLayout, key)
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	bestStart, bestLen := 0, 1
	runStart := 0
	for i := 1; i <= len(days); i++ {
		if i < len(days) && daysBetween(days[i-1], days[i]) == 1 {
			continue
		}
		// A strictly longer run is required so the earliest streak wins ties.
		if length := i - runStart; length > bestLen {
			bestStart, bestLen = runStart, length
		}
		runStart = i
	}

	streak := &BestStreak{
		Start:      days[bestStart],
		End:        days[bestStart+bestLen-1],
		LengthDays: bestLen,
	}
	for _, d := range days[bestStart : bestStart+bestLen] {
		b := buckets[DateKey(d)]
		streak.SwimCount += b.Swim
		streak.RunCount += b.Run
	}
	return streak
}
