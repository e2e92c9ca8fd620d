package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateByMonth(t *testing.T) {
	sessions := NormalizeAll([]RawSession{
		{ID: "1", Date: "2024-06-10", Distance: "1000", Type: "swim"},
		{ID: "2", Date: "2024-01-03", Distance: "5000", Type: "run"},
		{ID: "3", Date: "2024-06-30", Distance: "500", Type: "run"},
		{ID: "4", Date: "2024-06-01", Distance: "oops", Type: "kayak"},
		{ID: "5", Date: "2023-12-31", Distance: "250", Type: "swim"},
		{ID: "6", Date: "bad", Distance: "250", Type: "swim"},
	})

	months := AggregateByMonth(sessions)
	require.Equal(t, []MonthBucket{
		{Key: "2023-12", Label: "December 2023", TotalDistance: 250, SessionCount: 1, SwimDistance: 250, SwimCount: 1},
		{Key: "2024-01", Label: "January 2024", TotalDistance: 5000, SessionCount: 1, RunDistance: 5000, RunCount: 1},
		{Key: "2024-06", Label: "June 2024", TotalDistance: 1500, SessionCount: 3, SwimDistance: 1000, RunDistance: 500, SwimCount: 2, RunCount: 1},
	}, months)
}

func TestAggregateByMonthEmpty(t *testing.T) {
	require.Empty(t, AggregateByMonth(nil))
}
