package analytics

import "time"

// MaxLevel is the highest intensity level a heatmap cell can carry.
const MaxLevel = 4

// MaxHeatmapWeeks bounds the grid to roughly ten years of week columns.
const MaxHeatmapWeeks = 530

// CellKind is the rendering state of a heatmap cell.
type CellKind string

const (
	CellNone  CellKind = "none"
	CellSwim  CellKind = "swim"
	CellRun   CellKind = "run"
	CellMixed CellKind = "mixed"
)

// CalendarCell is one day of the padded weekly grid.
type CalendarCell struct {
	Date time.Time
	// InRange is false for the padding days that square off the first and last week.
	InRange    bool
	SwimCount  int
	RunCount   int
	TotalCount int
	Level      int
}

// Kind reports which color ramp the cell uses. Padding cells and empty days are CellNone.
func (c CalendarCell) Kind() CellKind {
	switch {
	case !c.InRange || c.TotalCount == 0:
		return CellNone
	case c.SwimCount > 0 && c.RunCount > 0:
		return CellMixed
	case c.RunCount > 0:
		return CellRun
	default:
		return CellSwim
	}
}

// MonthLabel marks the week column where a new month starts.
type MonthLabel struct {
	Week  int
	Key   string
	Label string
}

// Heatmap is the calendar grid for one reporting range.
type Heatmap struct {
	Range Range
	// Weeks runs oldest to newest; each week holds exactly seven cells starting at WeekStart.
	Weeks       [][]CalendarCell
	MonthLabels []MonthLabel
	ActiveDays  int
	TotalDays   int
	MaxCount    int
	// Skipped counts undated sessions left out of the grid.
	Skipped int
	// Truncated is set when the resolved range was cut to the latest
	// MaxHeatmapWeeks weeks; Range then holds the rendered interval.
	Truncated bool
}

// Level maps a day's session count onto 0..MaxLevel relative to the busiest day
// in range. Zero is always level 0. When the busiest day has a single session
// every active day is drawn at full intensity.
func Level(count, maxCount int) int {
	if count <= 0 {
		return 0
	}
	if maxCount <= 1 {
		return MaxLevel
	}
	level := (count*MaxLevel + maxCount - 1) / maxCount
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// BuildHeatmap resolves the range token against now, pads the interval out to
// whole weeks and fills one cell per day. Statistics only consider days inside
// the resolved range. Ranges longer than MaxHeatmapWeeks keep only their most
// recent weeks.
func BuildHeatmap(sessions []Session, token string, now time.Time) Heatmap {
	r, truncated := clampWeeks(ResolveRange(token, sessions, now), MaxHeatmapWeeks)
	buckets, skipped := BucketByDay(sessions)

	gridStart := StartOfWeek(r.Start)
	gridEnd := EndOfWeek(r.End)

	cells := make([]CalendarCell, 0, daysBetween(gridStart, gridEnd)+1)
	h := Heatmap{Range: r, Skipped: skipped, Truncated: truncated}
	for d := gridStart; !d.After(gridEnd); d = d.AddDate(0, 0, 1) {
		b := buckets[DateKey(d)]
		cell := CalendarCell{
			Date:       d,
			InRange:    r.Contains(d),
			SwimCount:  b.Swim,
			RunCount:   b.Run,
			TotalCount: b.Total(),
		}
		if cell.InRange {
			h.TotalDays++
			if cell.TotalCount > 0 {
				h.ActiveDays++
			}
			if cell.TotalCount > h.MaxCount {
				h.MaxCount = cell.TotalCount
			}
		}
		cells = append(cells, cell)
	}

	for i := range cells {
		if cells[i].InRange {
			cells[i].Level = Level(cells[i].TotalCount, h.MaxCount)
		}
	}

	h.Weeks = make([][]CalendarCell, 0, len(cells)/7)
	for start := 0; start < len(cells); start += 7 {
		h.Weeks = append(h.Weeks, cells[start:start+7:start+7])
	}
	h.MonthLabels = monthLabels(h.Weeks)
	return h
}

// clampWeeks keeps the newest maxWeeks week columns of r. The new start is the
// first day of the oldest kept week.
func clampWeeks(r Range, maxWeeks int) (Range, bool) {
	earliest := StartOfWeek(r.End).AddDate(0, 0, -7*(maxWeeks-1))
	if !r.Start.Before(earliest) {
		return r, false
	}
	return Range{Start: earliest, End: r.End}, true
}

// monthLabels emits a label for a week only when the month of its first
// in-range day differs from the previously emitted one.
func monthLabels(weeks [][]CalendarCell) []MonthLabel {
	var labels []MonthLabel
	last := ""
	for i, week := range weeks {
		for _, cell := range week {
			if !cell.InRange {
				continue
			}
			if key := MonthKey(cell.Date); key != last {
				labels = append(labels, MonthLabel{Week: i, Key: key, Label: cell.Date.Format("Jan")})
				last = key
			}
			break
		}
	}
	return labels
}
