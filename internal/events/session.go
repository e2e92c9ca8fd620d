// Package events defines the payloads exchanged over Kafka.
package events

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types carried in the event_type header.
const (
	TypeSessionLogged   = "session.logged"
	TypeSessionImported = "session.imported"
)

// SessionLogged is emitted through the outbox once a session is stored.
type SessionLogged struct {
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Distance  float64   `json:"distance_m"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	LoggedAt  time.Time `json:"logged_at"`
}

// SessionImported is one row produced by the CSV importer. Its fields are kept
// loosely typed: distance may arrive as a JSON number or a string and any field
// may be missing.
type SessionImported struct {
	ExternalID string          `json:"external_id"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	Date       string          `json:"date"`
	Distance   json.RawMessage `json:"distance"`
	Type       string          `json:"type"`
}

// DistanceText returns the distance as text, unquoting JSON strings and passing
// numbers through verbatim. Missing or null values become "".
func (e SessionImported) DistanceText() string {
	raw := strings.TrimSpace(string(e.Distance))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Distance, &s); err == nil {
		return s
	}
	return raw
}
