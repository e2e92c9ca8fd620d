package domain

import (
	"time"

	"example.com/swimrun/internal/analytics"
)

// SessionRecord is a stored swim or run session.
type SessionRecord struct {
	ID        string
	TenantID  string
	UserID    string
	Date      time.Time
	Distance  float64
	Type      string
	Source    string
	CreatedAt time.Time
}

// Cursor models the pagination token for session listings.
type Cursor struct {
	Date time.Time
	ID   string
}

func (r SessionRecord) analyticsSession() analytics.Session {
	return analytics.NewSession(r.ID, r.Date, r.Distance, r.Type)
}

func toAnalytics(records []SessionRecord) []analytics.Session {
	out := make([]analytics.Session, 0, len(records))
	for _, r := range records {
		out = append(out, r.analyticsSession())
	}
	return out
}
