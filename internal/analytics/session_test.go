package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSession(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawSession
		wantDate string
		wantDist float64
		wantType Type
	}{
		{"plain", RawSession{ID: "a", Date: "2024-06-10", Distance: "1500", Type: "swim"}, "2024-06-10", 1500, TypeSwim},
		{"run any case", RawSession{ID: "b", Date: "2024-06-10", Distance: "5000.5", Type: " RUN "}, "2024-06-10", 5000.5, TypeRun},
		{"missing type", RawSession{ID: "c", Date: "2024-06-10", Distance: "10"}, "2024-06-10", 10, TypeSwim},
		{"unknown type", RawSession{ID: "d", Date: "2024-06-10", Distance: "10", Type: "bike"}, "2024-06-10", 10, TypeSwim},
		{"garbage distance", RawSession{ID: "e", Date: "2024-06-10", Distance: "far"}, "2024-06-10", 0, TypeSwim},
		{"negative distance", RawSession{ID: "f", Date: "2024-06-10", Distance: "-20"}, "2024-06-10", 0, TypeSwim},
		{"nan distance", RawSession{ID: "g", Date: "2024-06-10", Distance: "NaN"}, "2024-06-10", 0, TypeSwim},
		{"offset keeps civil date", RawSession{ID: "h", Date: "2024-06-10T23:30:00-05:00", Distance: "1"}, "2024-06-10", 1, TypeSwim},
		{"slashes", RawSession{ID: "i", Date: "2024/06/10", Distance: "1"}, "2024-06-10", 1, TypeSwim},
		{"best effort prefix", RawSession{ID: "j", Date: "2024-06-10 morning", Distance: "1"}, "2024-06-10", 1, TypeSwim},
		{"undated", RawSession{ID: "k", Date: "yesterday", Distance: "1"}, "", 1, TypeSwim},
		{"empty date", RawSession{ID: "l", Distance: "1", Type: "run"}, "", 1, TypeRun},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NormalizeSession(tc.raw)
			require.Equal(t, tc.raw.ID, s.ID)
			require.Equal(t, tc.wantDate, s.Key())
			require.Equal(t, tc.wantDate != "", s.Dated)
			require.Equal(t, tc.wantDist, s.Distance)
			require.Equal(t, tc.wantType, s.Type)
		})
	}
}

func TestNewSessionAppliesSameRules(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	s := NewSession("x", time.Date(2024, time.June, 10, 22, 0, 0, 0, loc), -3, "Run")
	require.True(t, s.Dated)
	require.Equal(t, "2024-06-10", s.Key())
	require.Zero(t, s.Distance)
	require.Equal(t, TypeRun, s.Type)

	undated := NewSession("y", time.Time{}, 100, "")
	require.False(t, undated.Dated)
	require.Equal(t, TypeSwim, undated.Type)
}

func TestCountUndated(t *testing.T) {
	sessions := NormalizeAll([]RawSession{
		{ID: "1", Date: "2024-01-01"},
		{ID: "2", Date: "??"},
		{ID: "3"},
	})
	require.Len(t, sessions, 3)
	require.Equal(t, 2, CountUndated(sessions))
}

func TestWeekHelpers(t *testing.T) {
	// 2024-06-20 is a Thursday.
	d := time.Date(2024, time.June, 20, 15, 0, 0, 0, time.UTC)
	require.Equal(t, "2024-06-17", DateKey(StartOfWeek(d)))
	require.Equal(t, "2024-06-23", DateKey(EndOfWeek(d)))

	sunday := time.Date(2024, time.June, 23, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2024-06-17", DateKey(StartOfWeek(sunday)))

	monday := time.Date(2024, time.June, 17, 0, 0, 0, 0, time.UTC)
	require.Equal(t, monday, StartOfWeek(monday))

	require.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}, WeekdayLabels())
}

func TestAddMonthsClampsToMonthLength(t *testing.T) {
	tests := []struct {
		from string
		n    int
		want string
	}{
		{"2024-05-31", -3, "2024-02-29"},
		{"2023-05-31", -3, "2023-02-28"},
		{"2024-05-31", -6, "2023-11-30"},
		{"2024-03-15", -3, "2023-12-15"},
		{"2024-01-31", 1, "2024-02-29"},
	}
	for _, tc := range tests {
		from, ok := ParseDate(tc.from)
		require.True(t, ok)
		require.Equal(t, tc.want, DateKey(addMonths(from, tc.n)), "from %s by %d", tc.from, tc.n)
	}
}
