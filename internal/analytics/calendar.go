package analytics

import "time"

// WeekStart is the first day of every calendar week used by the engine, both
// for heatmap rows and for best-week partitioning. It is fixed to Monday (ISO
// 8601) so results do not depend on the host locale.
const WeekStart = time.Monday

const dateKeyLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// Civil strips the time of day from t, keeping the calendar date as observed in
// t's own location, and returns it at midnight UTC.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateKey formats a date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

// MonthKey formats a date as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// MonthLabelOf returns the human label of the month containing t, e.g. "June 2024".
func MonthLabelOf(t time.Time) string {
	return t.Format("January 2006")
}

// StartOfWeek returns the WeekStart day on or before the civil date of t.
func StartOfWeek(t time.Time) time.Time {
	d := Civil(t)
	offset := (int(d.Weekday()) - int(WeekStart) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// EndOfWeek returns the last day of the week containing t.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 6)
}

// WeekdayLabels returns abbreviated weekday names in grid order, starting at WeekStart.
func WeekdayLabels() []string {
	labels := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		labels = append(labels, time.Weekday((int(WeekStart) + i) % 7).String()[:3])
	}
	return labels
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonths shifts a civil date by n months, clamping the day to the length of
// the target month (March 31 minus one month is February 28 or 29).
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days between two UTC midnights. It avoids
// time.Duration, which saturates after roughly 292 years.
func daysBetween(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / secondsPerDay)
}
