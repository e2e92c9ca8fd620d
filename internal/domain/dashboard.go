package domain

import (
	"context"
	"fmt"
	"time"

	"example.com/swimrun/internal/analytics"
	"example.com/swimrun/internal/observability"
)

// Heatmap builds the calendar heatmap of a user's sessions for a range token.
func (s *Service) Heatmap(ctx context.Context, tenantID, userID, token string, now time.Time) (analytics.Heatmap, error) {
	return dashboard(ctx, s, "heatmap", tenantID, userID, token+"|"+analytics.DateKey(now),
		func(sessions []analytics.Session) (analytics.Heatmap, error) {
			return analytics.BuildHeatmap(sessions, token, now), nil
		})
}

// Months aggregates a user's sessions per calendar month.
func (s *Service) Months(ctx context.Context, tenantID, userID string) ([]analytics.MonthBucket, error) {
	return dashboard(ctx, s, "months", tenantID, userID, "",
		func(sessions []analytics.Session) ([]analytics.MonthBucket, error) {
			return analytics.AggregateByMonth(sessions), nil
		})
}

// Records computes a user's personal records.
func (s *Service) Records(ctx context.Context, tenantID, userID string) (analytics.Records, error) {
	return dashboard(ctx, s, "records", tenantID, userID, "",
		func(sessions []analytics.Session) (analytics.Records, error) {
			return analytics.ComputeRecords(sessions), nil
		})
}

// CompareMonths contrasts the month of now with the previous month. Unknown
// modes fail with analytics.ErrInvalidInput.
func (s *Service) CompareMonths(ctx context.Context, tenantID, userID string, mode analytics.Mode, now time.Time) (analytics.MonthCompare, error) {
	if _, err := analytics.ParseMode(string(mode)); err != nil {
		return analytics.MonthCompare{}, err
	}
	return dashboard(ctx, s, "compare", tenantID, userID, string(mode)+"|"+analytics.DateKey(now),
		func(sessions []analytics.Session) (analytics.MonthCompare, error) {
			return analytics.CompareMonths(sessions, mode, now)
		})
}

// dashboard loads the user's snapshot and runs compute over it, serving a
// memoized result when the same snapshot was already computed with the same params.
func dashboard[T any](ctx context.Context, s *Service, operation, tenantID, userID, params string, compute func([]analytics.Session) (T, error)) (T, error) {
	var zero T

	records, err := s.repo.ListAllByUser(ctx, tenantID, userID)
	if err != nil {
		return zero, fmt.Errorf("load sessions: %w", err)
	}
	sessions := toAnalytics(records)

	key := operation + "|" + params + "|" + fingerprint(sessions)
	var cached T
	if s.cache.get(key, &cached) {
		observability.RecordComputation(operation, true)
		return cached, nil
	}

	result, err := compute(sessions)
	if err != nil {
		return zero, err
	}
	observability.RecordComputation(operation, false)
	observability.RecordSkippedSessions(operation, analytics.CountUndated(sessions))
	s.cache.set(key, result)
	return result, nil
}
