package analytics

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which session types a comparison sums.
type Mode string

const (
	ModeAll  Mode = "all"
	ModeSwim Mode = "swim"
	ModeRun  Mode = "run"
)

// ParseMode validates a mode selector. An empty value means ModeAll.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeAll, nil
	case ModeAll, ModeSwim, ModeRun:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, raw)
	}
}

func (m Mode) matches(t Type) bool {
	switch m {
	case ModeSwim:
		return t == TypeSwim
	case ModeRun:
		return t == TypeRun
	default:
		return true
	}
}

// Winner names which month came out ahead on a metric.
type Winner string

const (
	WinnerCurrent Winner = "current"
	WinnerLast    Winner = "last"
	WinnerTie     Winner = "tie"
)

// MonthCompare contrasts the month of now with the month before it, both in
// full and up to the same day of the month.
type MonthCompare struct {
	CurrentLabel string
	LastLabel    string
	CurrentTotal float64
	LastTotal    float64
	CurrentToDay float64
	LastToDay    float64
	CurrentDay   int
	// LastMonthDay is CurrentDay clamped to the length of the previous month.
	LastMonthDay int
	TotalWinner  Winner
	ToDayWinner  Winner
}

// CompareMonths sums the distance of the sessions matching mode in now's month
// and in the previous month. An unknown mode is an ErrInvalidInput.
func CompareMonths(sessions []Session, mode Mode, now time.Time) (MonthCompare, error) {
	mode, err := ParseMode(string(mode))
	if err != nil {
		return MonthCompare{}, err
	}

	today := Civil(now)
	current := firstOfMonth(today)
	last := current.AddDate(0, -1, 0)

	c := MonthCompare{
		CurrentLabel: MonthLabelOf(current),
		LastLabel:    MonthLabelOf(last),
		CurrentDay:   today.Day(),
		LastMonthDay: min(today.Day(), daysIn(last.Year(), last.Month())),
	}
	c.CurrentTotal, c.CurrentToDay = monthTotals(sessions, mode, current, c.CurrentDay)
	c.LastTotal, c.LastToDay = monthTotals(sessions, mode, last, c.LastMonthDay)
	c.TotalWinner = pickWinner(c.CurrentTotal, c.LastTotal)
	c.ToDayWinner = pickWinner(c.CurrentToDay, c.LastToDay)
	return c, nil
}

func pickWinner(current, last float64) Winner {
	switch {
	case current > last:
		return WinnerCurrent
	case last > current:
		return WinnerLast
	default:
		return WinnerTie
	}
}
