// Package domain defines the session workflows and dashboard queries of the swimrun service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/swimrun/internal/analytics"
	"example.com/swimrun/internal/events"
	"example.com/swimrun/internal/observability"
)

var (
	// ErrSessionNotFound is returned when a session cannot be located.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidSession is returned when a logged session cannot be stored.
	ErrInvalidSession = errors.New("invalid session")
	// ErrDuplicateSession is returned by a repository when another session
	// already holds the idempotency key.
	ErrDuplicateSession = errors.New("duplicate idempotency key")
)

// SessionRepository captures persistence operations.
type SessionRepository interface {
	FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*SessionRecord, error)
	Create(ctx context.Context, record SessionRecord, idempotencyKey string) error
	Get(ctx context.Context, tenantID, sessionID string) (*SessionRecord, error)
	ListByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]SessionRecord, *Cursor, error)
	// ListAllByUser returns every session of the user ordered by date then ID.
	ListAllByUser(ctx context.Context, tenantID, userID string) ([]SessionRecord, error)
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithCache memoizes dashboard results in c.
func WithCache(c *AnalyticsCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithClock overrides the clock used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates session workflows.
type Service struct {
	repo  SessionRepository
	cache *AnalyticsCache
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(repo SessionRepository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogSessionInput captures a session submitted through the API.
type LogSessionInput struct {
	TenantID       string
	UserID         string
	Date           string
	Distance       float64
	Type           string
	Source         string
	IdempotencyKey string
}

// LogSession stores a session with idempotent create semantics. The boolean
// result reports whether an earlier session was replayed.
func (s *Service) LogSession(ctx context.Context, input LogSessionInput) (*SessionRecord, bool, error) {
	if strings.TrimSpace(input.TenantID) == "" || strings.TrimSpace(input.UserID) == "" {
		return nil, false, fmt.Errorf("%w: tenant and user are required", ErrInvalidSession)
	}
	date, ok := analytics.ParseDate(input.Date)
	if !ok {
		return nil, false, fmt.Errorf("%w: unparseable date %q", ErrInvalidSession, input.Date)
	}
	return s.store(ctx, input.TenantID, input.UserID, input.IdempotencyKey, input.Source,
		analytics.NewSession("", date, input.Distance, input.Type))
}

// ImportSession stores one row from the CSV importer. Rows without a usable
// date are dropped and counted instead of failing, so a nil record with a nil
// error means the row was skipped.
func (s *Service) ImportSession(ctx context.Context, evt events.SessionImported) (*SessionRecord, bool, error) {
	if strings.TrimSpace(evt.TenantID) == "" || strings.TrimSpace(evt.UserID) == "" {
		return nil, false, fmt.Errorf("%w: tenant and user are required", ErrInvalidSession)
	}

	session := analytics.NormalizeSession(analytics.RawSession{
		ID:       evt.ExternalID,
		Date:     evt.Date,
		Distance: evt.DistanceText(),
		Type:     evt.Type,
	})
	if !session.Dated {
		observability.RecordSkippedSessions("import", 1)
		return nil, false, nil
	}

	key := ""
	if session.ID != "" {
		key = "import:" + session.ID
	}
	return s.store(ctx, evt.TenantID, evt.UserID, key, "import", session)
}

func (s *Service) store(ctx context.Context, tenantID, userID, idempotencyKey, source string, session analytics.Session) (*SessionRecord, bool, error) {
	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotency(ctx, tenantID, userID, idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
	}

	record := SessionRecord{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Date:      session.Date,
		Distance:  session.Distance,
		Type:      string(session.Type),
		Source:    source,
		CreatedAt: s.now().UTC(),
	}
	err := s.repo.Create(ctx, record, idempotencyKey)
	if errors.Is(err, ErrDuplicateSession) && idempotencyKey != "" {
		// A concurrent request with the same key won the insert.
		existing, findErr := s.repo.FindByIdempotency(ctx, tenantID, userID, idempotencyKey)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			return existing, true, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return &record, false, nil
}

// GetSession fetches by ID.
func (s *Service) GetSession(ctx context.Context, tenantID, sessionID string) (*SessionRecord, error) {
	record, err := s.repo.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// ListSessionsByUser fetches sessions with cursor pagination, newest first.
func (s *Service) ListSessionsByUser(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]SessionRecord, *Cursor, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, cursor, limit)
}
