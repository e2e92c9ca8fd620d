package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDLQMaxRetries = 5
	defaultDLQBaseDelay  = time.Minute
	maxDLQDelay          = time.Hour
)

// DLQManagerOption customises a DLQManager.
type DLQManagerOption func(*DLQManager)

// WithDLQLogger overrides the logger.
func WithDLQLogger(logger log.FieldLogger) DLQManagerOption {
	return func(m *DLQManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// DLQManager replays dead-lettered session events back into the outbox.
//
// A fresh dead-letter row is first scheduled with an exponential delay keyed
// on how often the event was already replayed. Once due it is copied into
// outbox under a new dedupe key and removed from outbox_dlq. Rows whose replay
// count reached maxRetries are quarantined and left for an operator.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     log.FieldLogger
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive maxRetries or baseDelay
// fall back to five attempts and one minute.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, opts ...DLQManagerOption) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = defaultDLQMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultDLQBaseDelay
	}
	m := &DLQManager{pool: pool, logger: log.StandardLogger(), maxRetries: maxRetries, baseDelay: baseDelay}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunOnce handles up to batchSize due dead-letter rows and returns how many
// were requeued into the outbox.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	const query = `SELECT dlq_id, tenant_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at
        FROM outbox_dlq
        WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
        ORDER BY failed_at, dlq_id
        LIMIT $1`

	rows, err := m.pool.Query(ctx, query, batchSize)
	if err != nil {
		return 0, fmt.Errorf("select dlq entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanDLQEntry)
	if err != nil {
		return 0, fmt.Errorf("scan dlq entries: %w", err)
	}

	requeued := 0
	for _, entry := range entries {
		outcome, procErr := m.handleEntry(ctx, entry)
		if procErr != nil {
			err = errors.Join(err, fmt.Errorf("dlq entry %d: %w", entry.ID, procErr))
			continue
		}
		logger := m.logger.WithFields(log.Fields{"dlq_id": entry.ID, "event_id": entry.EventID, "topic": entry.Topic, "retry_count": entry.RetryCount})
		switch outcome {
		case outcomeRequeued:
			requeued++
			recordDLQRequeued(entry)
			logger.Info("dead-lettered event requeued")
		case outcomeScheduled:
			recordDLQRetry(entry)
			logger.Debug("dead-lettered event scheduled for replay")
		case outcomeQuarantined:
			recordDLQQuarantined(entry)
			logger.Warn("dead-lettered event quarantined after retry limit")
		}
	}
	updateBacklogGauge(ctx, m.pool)
	return requeued, err
}

type dlqOutcome int

const (
	outcomeSkipped dlqOutcome = iota
	outcomeScheduled
	outcomeRequeued
	outcomeQuarantined
)

// handleEntry applies the schedule, requeue or quarantine step for one row
// inside its own transaction. Rows locked by another manager are skipped.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) (outcome dlqOutcome, err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return outcomeSkipped, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var locked int64
	err = tx.QueryRow(ctx, `SELECT dlq_id FROM outbox_dlq WHERE dlq_id = $1 AND quarantined_at IS NULL FOR UPDATE SKIP LOCKED`, entry.ID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return outcomeSkipped, tx.Rollback(ctx)
	}
	if err != nil {
		return outcomeSkipped, err
	}

	switch {
	case entry.RetryCount >= m.maxRetries:
		_, err = tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
			fmt.Sprintf("retry limit %d reached: %s", m.maxRetries, entry.Reason), entry.ID)
		outcome = outcomeQuarantined
	case entry.NextRetryAt == nil:
		_, err = tx.Exec(ctx, `UPDATE outbox_dlq SET next_retry_at = NOW() + $1::interval WHERE dlq_id = $2`,
			m.backoffDelay(entry.RetryCount+1), entry.ID)
		outcome = outcomeScheduled
	default:
		outcome, err = m.requeue(ctx, tx, entry)
	}
	if err != nil {
		return outcomeSkipped, err
	}
	return outcome, tx.Commit(ctx)
}

// requeue copies entry back into the outbox. A failed insert is recorded on
// the dead-letter row and pushed out by another backoff step.
func (m *DLQManager) requeue(ctx context.Context, tx pgx.Tx, entry dlqEntry) (dlqOutcome, error) {
	attempt := entry.RetryCount + 1
	insertErr := requeueOutbox(ctx, tx, entry, attempt)
	if insertErr == nil {
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return outcomeRequeued, err
	}

	_, err := tx.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		m.backoffDelay(attempt+1), insertErr.Error(), entry.ID,
	)
	return outcomeScheduled, err
}

// backoffDelay doubles baseDelay per attempt and caps the result at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := m.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDLQDelay {
			return maxDLQDelay
		}
	}
	if delay > maxDLQDelay {
		return maxDLQDelay
	}
	return delay
}

// requeueOutbox inserts the payload as a new pending outbox row. The original
// dedupe key is still held by the published row, so the replay gets its own.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry, attempt int) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key, replay_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err := tx.Exec(ctx, stmt,
		entry.TenantID,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Topic,
		entry.SchemaSubject,
		entry.PartitionKey,
		entry.Payload,
		replayDedupeKey(entry, attempt),
		attempt,
	)
	return err
}

func replayDedupeKey(entry dlqEntry, attempt int) string {
	return fmt.Sprintf("%s:%s:replay:%d:%d", entry.AggregateID, entry.EventType, entry.ID, attempt)
}

// dlqEntry is an outbox_dlq row selected for processing.
type dlqEntry struct {
	ID            int64
	TenantID      string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
	NextRetryAt   *time.Time
}

func scanDLQEntry(row pgx.CollectableRow) (dlqEntry, error) {
	var entry dlqEntry
	err := row.Scan(&entry.ID, &entry.TenantID, &entry.EventID, &entry.EventType, &entry.Topic, &entry.Payload, &entry.Reason,
		&entry.AggregateType, &entry.AggregateID, &entry.SchemaSubject, &entry.PartitionKey, &entry.RetryCount, &entry.NextRetryAt)
	return entry, err
}
