// Package postgres stores sessions and their outbox events in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/swimrun/internal/analytics"
	"example.com/swimrun/internal/domain"
	"example.com/swimrun/internal/events"
	"example.com/swimrun/internal/observability"
)

const uniqueViolation = "23505"

const sessionColumns = `session_id, tenant_id, user_id, session_date, distance_m, session_type, source, created_at`

// Repository provides Postgres-backed persistence for sessions and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// inTenant runs fn in a transaction scoped to tenantID by the row level security policy.
func (r *Repository) inTenant(ctx context.Context, tenantID string, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByIdempotency returns the session stored under the idempotency key, if any.
func (r *Repository) FindByIdempotency(ctx context.Context, tenantID, userID, idempotencyKey string) (*domain.SessionRecord, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	var found *domain.SessionRecord
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+sessionColumns+`
        FROM sessions WHERE tenant_id=$1 AND user_id=$2 AND idempotency_key=$3`, tenantID, userID, idempotencyKey)
		rec, err := scanSession(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &rec
		return nil
	})
	return found, err
}

// Create persists the session and its session.logged outbox event in a single transaction.
func (r *Repository) Create(ctx context.Context, record domain.SessionRecord, idempotencyKey string) error {
	err := r.inTenant(ctx, record.TenantID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO sessions (`+sessionColumns+`, idempotency_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			record.ID,
			record.TenantID,
			record.UserID,
			record.Date,
			record.Distance,
			record.Type,
			record.Source,
			record.CreatedAt,
			nullIfEmpty(idempotencyKey),
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "sessions_idempotency_idx" {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSession, pgErr.Detail)
		}
		if err != nil {
			return err
		}

		return insertOutbox(ctx, tx, record, events.TypeSessionLogged, events.SessionLogged{
			SessionID: record.ID,
			TenantID:  record.TenantID,
			UserID:    record.UserID,
			Date:      analytics.DateKey(record.Date),
			Distance:  record.Distance,
			Type:      record.Type,
			Source:    record.Source,
			LoggedAt:  record.CreatedAt,
		})
	})
	if err != nil {
		return err
	}
	observability.RecordSessionPersisted(record.CreatedAt)
	return nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, record domain.SessionRecord, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		record.TenantID,
		"session",
		record.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(record),
		body,
		fmt.Sprintf("%s:%s", record.ID, eventType),
	)
	return err
}

// Get retrieves a session by ID. A missing session yields nil without error.
func (r *Repository) Get(ctx context.Context, tenantID, sessionID string) (*domain.SessionRecord, error) {
	var found *domain.SessionRecord
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE tenant_id=$1 AND session_id=$2`, tenantID, sessionID)
		rec, err := scanSession(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = &rec
		return nil
	})
	return found, err
}

// ListByUser returns one page of a user's sessions, newest first.
func (r *Repository) ListByUser(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.SessionRecord, *domain.Cursor, error) {
	args := []any{tenantID, userID, limit}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE tenant_id=$1 AND user_id=$2`
	if cursor != nil {
		query += ` AND (session_date, session_id) < ($4, $5)`
		args = append(args, cursor.Date, cursor.ID)
	}
	query += ` ORDER BY session_date DESC, session_id DESC LIMIT $3`

	var results []domain.SessionRecord
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		results, err = querySessions(ctx, tx, query, args...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return results, next, nil
}

// ListAllByUser returns the full snapshot of a user's sessions ordered by date then ID.
func (r *Repository) ListAllByUser(ctx context.Context, tenantID, userID string) ([]domain.SessionRecord, error) {
	var results []domain.SessionRecord
	err := r.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		var err error
		results, err = querySessions(ctx, tx, `SELECT `+sessionColumns+`
        FROM sessions WHERE tenant_id=$1 AND user_id=$2 ORDER BY session_date, session_id`, tenantID, userID)
		return err
	})
	return results, err
}

func querySessions(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]domain.SessionRecord, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanSession(row pgx.Row) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.Date, &rec.Distance, &rec.Type, &rec.Source, &rec.CreatedAt)
	if err != nil {
		return domain.SessionRecord{}, err
	}
	rec.Date = analytics.Civil(rec.Date)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.SessionRecord) string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeSessionLogged: {
		Topic:         "session_events",
		SchemaSubject: "session_events-value",
		PartitionKeyFn: func(r domain.SessionRecord) string {
			return fmt.Sprintf("%s:%s", r.TenantID, r.UserID)
		},
	},
}
