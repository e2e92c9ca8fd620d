package api

import (
	"errors"
	"math"
	"strings"
	"time"

	"example.com/swimrun/internal/analytics"
	"example.com/swimrun/internal/domain"
)

// LogSessionRequest is the payload for POST /v1/sessions.
type LogSessionRequest struct {
	UserID   string  `json:"user_id"`
	Date     string  `json:"date"`
	Distance float64 `json:"distance_m"`
	Type     string  `json:"type"`
	Source   string  `json:"source"`
}

// Validate ensures request correctness.
func (r LogSessionRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("user_id is required")
	}
	if strings.TrimSpace(r.Date) == "" {
		return errors.New("date is required")
	}
	if r.Distance < 0 || math.IsNaN(r.Distance) {
		return errors.New("distance_m must be >= 0")
	}
	return nil
}

// SessionView is the API representation of a stored session.
type SessionView struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Distance  float64   `json:"distance_m"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// LogSessionResponse describes the response body for create.
type LogSessionResponse struct {
	Session SessionView `json:"session"`
	Replay  bool        `json:"idempotent_replay"`
}

// ListSessionsResponse packages list results.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RangeView is an inclusive date range.
type RangeView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CellView is one day of the heatmap grid.
type CellView struct {
	Date    string `json:"date"`
	InRange bool   `json:"in_range"`
	Swim    int    `json:"swim"`
	Run     int    `json:"run"`
	Total   int    `json:"total"`
	Level   int    `json:"level"`
	Kind    string `json:"kind"`
}

// MonthLabelView marks the week column where a month starts.
type MonthLabelView struct {
	Week  int    `json:"week"`
	Month string `json:"month"`
	Label string `json:"label"`
}

// HeatmapView is the response of GET /v1/analytics/heatmap.
type HeatmapView struct {
	Range         RangeView        `json:"range"`
	Weeks         [][]CellView     `json:"weeks"`
	MonthLabels   []MonthLabelView `json:"month_labels"`
	WeekdayLabels []string         `json:"weekday_labels"`
	ActiveDays    int              `json:"active_days"`
	TotalDays     int              `json:"total_days"`
	MaxCount      int              `json:"max_count"`
	Skipped       int              `json:"skipped_sessions"`
	Truncated     bool             `json:"truncated"`
}

// MonthView is one calendar month of totals.
type MonthView struct {
	Key           string  `json:"month"`
	Label         string  `json:"label"`
	TotalDistance float64 `json:"total_distance_m"`
	SessionCount  int     `json:"session_count"`
	SwimDistance  float64 `json:"swim_distance_m"`
	RunDistance   float64 `json:"run_distance_m"`
	SwimCount     int     `json:"swim_count"`
	RunCount      int     `json:"run_count"`
}

// MonthsResponse is the response of GET /v1/analytics/months.
type MonthsResponse struct {
	Items []MonthView `json:"items"`
}

// BestSessionView is a single best session.
type BestSessionView struct {
	SessionID string  `json:"session_id"`
	Date      string  `json:"date,omitempty"`
	Distance  float64 `json:"distance_m"`
	Type      string  `json:"type"`
}

// BestWeekView is the highest-volume Monday-based week.
type BestWeekView struct {
	WeekStart string  `json:"week_start"`
	Total     float64 `json:"total_distance_m"`
	SwimTotal float64 `json:"swim_distance_m"`
	RunTotal  float64 `json:"run_distance_m"`
	Dominant  string  `json:"dominant"`
}

// BestStreakView is the longest run of consecutive active days.
type BestStreakView struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	LengthDays int    `json:"length_days"`
	SwimCount  int    `json:"swim_count"`
	RunCount   int    `json:"run_count"`
}

// RecordsView is the response of GET /v1/analytics/records.
type RecordsView struct {
	BestSwim   *BestSessionView `json:"best_swim"`
	BestRun    *BestSessionView `json:"best_run"`
	BestWeek   *BestWeekView    `json:"best_week"`
	BestStreak *BestStreakView  `json:"best_streak"`
	Skipped    int              `json:"skipped_sessions"`
}

// CompareView is the response of GET /v1/analytics/compare.
type CompareView struct {
	CurrentLabel string  `json:"current_label"`
	LastLabel    string  `json:"last_label"`
	CurrentTotal float64 `json:"current_total_m"`
	LastTotal    float64 `json:"last_total_m"`
	CurrentToDay float64 `json:"current_to_day_m"`
	LastToDay    float64 `json:"last_to_day_m"`
	CurrentDay   int     `json:"current_day"`
	LastMonthDay int     `json:"last_month_day"`
	TotalWinner  string  `json:"total_winner"`
	ToDayWinner  string  `json:"to_day_winner"`
}

func toSessionView(rec domain.SessionRecord) SessionView {
	return SessionView{
		SessionID: rec.ID,
		UserID:    rec.UserID,
		Date:      analytics.DateKey(rec.Date),
		Distance:  rec.Distance,
		Type:      rec.Type,
		Source:    rec.Source,
		CreatedAt: rec.CreatedAt,
	}
}

func toHeatmapView(h analytics.Heatmap) HeatmapView {
	view := HeatmapView{
		Range:         RangeView{Start: analytics.DateKey(h.Range.Start), End: analytics.DateKey(h.Range.End)},
		Weeks:         make([][]CellView, 0, len(h.Weeks)),
		MonthLabels:   make([]MonthLabelView, 0, len(h.MonthLabels)),
		WeekdayLabels: analytics.WeekdayLabels(),
		ActiveDays:    h.ActiveDays,
		TotalDays:     h.TotalDays,
		MaxCount:      h.MaxCount,
		Skipped:       h.Skipped,
		Truncated:     h.Truncated,
	}
	for _, week := range h.Weeks {
		cells := make([]CellView, 0, len(week))
		for _, c := range week {
			cells = append(cells, CellView{
				Date:    analytics.DateKey(c.Date),
				InRange: c.InRange,
				Swim:    c.SwimCount,
				Run:     c.RunCount,
				Total:   c.TotalCount,
				Level:   c.Level,
				Kind:    string(c.Kind()),
			})
		}
		view.Weeks = append(view.Weeks, cells)
	}
	for _, l := range h.MonthLabels {
		view.MonthLabels = append(view.MonthLabels, MonthLabelView{Week: l.Week, Month: l.Key, Label: l.Label})
	}
	return view
}

func toBestSessionView(b *analytics.BestSession) *BestSessionView {
	if b == nil {
		return nil
	}
	view := &BestSessionView{SessionID: b.ID, Distance: b.Distance, Type: string(b.Type)}
	if b.Dated {
		view.Date = analytics.DateKey(b.Date)
	}
	return view
}

func toRecordsView(r analytics.Records) RecordsView {
	view := RecordsView{
		BestSwim: toBestSessionView(r.BestSwim),
		BestRun:  toBestSessionView(r.BestRun),
		Skipped:  r.Skipped,
	}
	if w := r.BestWeek; w != nil {
		view.BestWeek = &BestWeekView{
			WeekStart: analytics.DateKey(w.WeekStart),
			Total:     w.Total,
			SwimTotal: w.SwimTotal,
			RunTotal:  w.RunTotal,
			Dominant:  string(w.Dominant()),
		}
	}
	if s := r.BestStreak; s != nil {
		view.BestStreak = &BestStreakView{
			Start:      analytics.DateKey(s.Start),
			End:        analytics.DateKey(s.End),
			LengthDays: s.LengthDays,
			SwimCount:  s.SwimCount,
			RunCount:   s.RunCount,
		}
	}
	return view
}

func toCompareView(c analytics.MonthCompare) CompareView {
	return CompareView{
		CurrentLabel: c.CurrentLabel,
		LastLabel:    c.LastLabel,
		CurrentTotal: c.CurrentTotal,
		LastTotal:    c.LastTotal,
		CurrentToDay: c.CurrentToDay,
		LastToDay:    c.LastToDay,
		CurrentDay:   c.CurrentDay,
		LastMonthDay: c.LastMonthDay,
		TotalWinner:  string(c.TotalWinner),
		ToDayWinner:  string(c.ToDayWinner),
	}
}
