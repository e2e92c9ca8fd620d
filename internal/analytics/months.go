package analytics

import (
	"sort"
	"time"
)

// MonthBucket holds the totals of one calendar month.
type MonthBucket struct {
	Key           string
	Label         string
	TotalDistance float64
	SessionCount  int
	SwimDistance  float64
	RunDistance   float64
	SwimCount     int
	RunCount      int
}

func (b *MonthBucket) add(s Session) {
	b.TotalDistance += s.Distance
	b.SessionCount++
	if s.Type == TypeRun {
		b.RunDistance += s.Distance
		b.RunCount++
		return
	}
	b.SwimDistance += s.Distance
	b.SwimCount++
}

// AggregateByMonth sums distance and counts per YYYY-MM, split by type, and
// returns the months in ascending order. Months without sessions are absent.
// Undated sessions are not attributed to any month.
func AggregateByMonth(sessions []Session) []MonthBucket {
	byKey := make(map[string]*MonthBucket)
	for _, s := range sessions {
		if !s.Dated {
			continue
		}
		key := MonthKey(s.Date)
		b, ok := byKey[key]
		if !ok {
			b = &MonthBucket{Key: key, Label: MonthLabelOf(s.Date)}
			byKey[key] = b
		}
		b.add(s)
	}

	out := make([]MonthBucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// monthTotals sums the distance of the sessions in the month of ref that match
// mode, both for the whole month and up to and including day uptoDay.
func monthTotals(sessions []Session, mode Mode, ref time.Time, uptoDay int) (total, toDay float64) {
	for _, s := range sessions {
		if !s.Dated || !mode.matches(s.Type) {
			continue
		}
		if s.Date.Year() != ref.Year() || s.Date.Month() != ref.Month() {
			continue
		}
		total += s.Distance
		if s.Date.Day() <= uptoDay {
			toDay += s.Distance
		}
	}
	return total, toDay
}
