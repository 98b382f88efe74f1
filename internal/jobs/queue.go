// Package jobs is a PostgreSQL-backed work queue: idempotent enqueue,
// FOR UPDATE SKIP LOCKED dequeue, exponential backoff and stale recovery.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// JobStatus represents the state of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job is one queued unit of work. Operation names what to do with EntityID;
// Payload carries whatever the handler needs beyond the id.
type Job struct {
	ID           uuid.UUID       `bun:"id" json:"id"`
	Operation    string          `bun:"operation" json:"operation"`
	EntityID     uuid.UUID       `bun:"entity_id" json:"entity_id"`
	Payload      json.RawMessage `bun:"payload,type:jsonb" json:"payload,omitempty"`
	Status       JobStatus       `bun:"status" json:"status"`
	AttemptCount int             `bun:"attempt_count" json:"attempt_count"`
	LastError    *string         `bun:"last_error" json:"last_error,omitempty"`
	Priority     int             `bun:"priority" json:"priority"`
	ScheduledAt  time.Time       `bun:"scheduled_at" json:"scheduled_at"`
	StartedAt    *time.Time      `bun:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time      `bun:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time       `bun:"created_at" json:"created_at"`
}

// QueueConfig contains configuration for a job queue
type QueueConfig struct {
	// TableName is the fully qualified table name, e.g. "cmdb.graph_sync_jobs".
	TableName string
	// MaxAttempts is the number of attempts before a job is parked as failed (0 = unlimited).
	MaxAttempts int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	BatchSize      int
}

// DefaultQueueConfig returns a QueueConfig with sensible defaults
func DefaultQueueConfig(tableName string) QueueConfig {
	return QueueConfig{
		TableName:      tableName,
		MaxAttempts:    0,
		BaseRetryDelay: 30 * time.Second,
		MaxRetryDelay:  time.Hour,
		BatchSize:      10,
	}
}

// Queue provides job operations over one table.
type Queue struct {
	db     bun.IDB
	config QueueConfig
	log    *slog.Logger
}

// NewQueue creates a new job queue with the given configuration
func NewQueue(db bun.IDB, config QueueConfig, log *slog.Logger) *Queue {
	def := DefaultQueueConfig(config.TableName)
	if config.BaseRetryDelay <= 0 {
		config.BaseRetryDelay = def.BaseRetryDelay
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = def.MaxRetryDelay
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	return &Queue{db: db, config: config, log: log}
}

// Config returns the effective configuration.
func (q *Queue) Config() QueueConfig {
	return q.config
}

// Enqueue adds a job unless a pending job for the same operation and entity
// already exists. A job that is already processing does not absorb the new
// one, since it may have read its input before the caller's change. It
// reports whether a row was inserted.
func (q *Queue) Enqueue(ctx context.Context, operation string, entityID uuid.UUID, payload any, priority int) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}
	if payload == nil {
		raw = []byte("{}")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, operation, entity_id, payload, status, priority, scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, now(), now(), now())
		ON CONFLICT (operation, entity_id) WHERE status = 'pending' DO NOTHING`,
		q.config.TableName)

	res, err := q.db.NewRaw(query, uuid.New(), operation, entityID, string(raw), priority).Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("enqueue failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Dequeue atomically claims up to batchSize due jobs. Concurrent workers
// never claim the same row thanks to FOR UPDATE SKIP LOCKED, and a job is
// not claimed while another job for the same entity is processing.
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]Job, error) {
	if batchSize <= 0 {
		batchSize = q.config.BatchSize
	}

	query := fmt.Sprintf(`
		WITH cte AS (
			SELECT c.id FROM %[1]s c
			WHERE c.status = 'pending' AND c.scheduled_at <= now()
				AND NOT EXISTS (
					SELECT 1 FROM %[1]s p
					WHERE p.operation = c.operation AND p.entity_id = c.entity_id
						AND p.status = 'processing')
			ORDER BY c.priority DESC, c.scheduled_at ASC
			FOR UPDATE OF c SKIP LOCKED
			LIMIT ?
		)
		UPDATE %[1]s j
		SET status = 'processing', started_at = now(), updated_at = now()
		FROM cte WHERE j.id = cte.id
		RETURNING j.id, j.operation, j.entity_id, j.payload, j.status, j.attempt_count,
			j.last_error, j.priority, j.scheduled_at, j.started_at, j.completed_at, j.created_at`,
		q.config.TableName)

	var jobs []Job
	if err := q.db.NewRaw(query, batchSize).Scan(ctx, &jobs); err != nil {
		return nil, fmt.Errorf("dequeue failed: %w", err)
	}
	return jobs, nil
}

// MarkCompleted marks a job as completed
func (q *Queue) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = ?`, q.config.TableName)

	if _, err := q.db.NewRaw(query, id).Exec(ctx); err != nil {
		return fmt.Errorf("mark completed failed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The job is rescheduled with backoff,
// or parked as failed once MaxAttempts is reached.
func (q *Queue) MarkFailed(ctx context.Context, job Job, cause error) error {
	attempt := job.AttemptCount + 1
	msg := truncateError(cause.Error())

	if q.config.MaxAttempts > 0 && attempt >= q.config.MaxAttempts {
		query := fmt.Sprintf(`
			UPDATE %s SET status = 'failed', attempt_count = ?, last_error = ?, updated_at = now()
			WHERE id = ?`, q.config.TableName)
		if _, err := q.db.NewRaw(query, attempt, msg, job.ID).Exec(ctx); err != nil {
			return fmt.Errorf("mark failed (permanent) failed: %w", err)
		}
		q.log.Warn("job permanently failed after max attempts",
			slog.String("job_id", job.ID.String()),
			slog.String("operation", job.Operation),
			slog.Int("attempts", attempt),
			slog.String("error", msg))
		return nil
	}

	superseded, err := q.completeSuperseded(ctx, job.ID, attempt, msg)
	if err != nil {
		return fmt.Errorf("mark failed (superseded) failed: %w", err)
	}
	if superseded {
		q.log.Debug("failed job superseded by a newer pending job",
			slog.String("job_id", job.ID.String()),
			slog.String("operation", job.Operation))
		return nil
	}

	delay := RetryDelay(q.config, attempt)
	query := fmt.Sprintf(`
		UPDATE %s SET status = 'pending', attempt_count = ?, last_error = ?,
			scheduled_at = now() + make_interval(secs => ?), started_at = NULL, updated_at = now()
		WHERE id = ?`, q.config.TableName)
	if _, err := q.db.NewRaw(query, attempt, msg, delay.Seconds(), job.ID).Exec(ctx); err != nil {
		return fmt.Errorf("mark failed (retry) failed: %w", err)
	}

	q.log.Debug("job scheduled for retry",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	return nil
}

// completeSuperseded closes a processing job when a pending job for the same
// entity was enqueued meanwhile; the pending one does the retry.
func (q *Queue) completeSuperseded(ctx context.Context, id uuid.UUID, attempt int, msg string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s j SET status = 'completed', attempt_count = ?, last_error = ?,
			completed_at = now(), updated_at = now()
		WHERE j.id = ? AND EXISTS (
			SELECT 1 FROM %[1]s p
			WHERE p.operation = j.operation AND p.entity_id = j.entity_id
				AND p.status = 'pending' AND p.id <> j.id)`, q.config.TableName)
	res, err := q.db.NewRaw(query, attempt, msg, id).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RetryDelay is BaseRetryDelay * attempt², capped at MaxRetryDelay.
func RetryDelay(cfg QueueConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.BaseRetryDelay * time.Duration(attempt*attempt)
	if d > cfg.MaxRetryDelay || d <= 0 {
		return cfg.MaxRetryDelay
	}
	return d
}

// RecoverStaleJobs returns jobs stuck in processing longer than threshold to
// pending. This happens when the process dies mid-batch. A stale job whose
// entity already has a pending job is completed instead.
func (q *Queue) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}

	query := fmt.Sprintf(`
		WITH stale AS (
			SELECT j.id, EXISTS (
				SELECT 1 FROM %[1]s p
				WHERE p.operation = j.operation AND p.entity_id = j.entity_id AND p.status = 'pending'
			) AS superseded
			FROM %[1]s j
			WHERE j.status = 'processing' AND j.started_at < now() - make_interval(secs => ?)
		)
		UPDATE %[1]s j SET
			status = CASE WHEN stale.superseded THEN 'completed' ELSE 'pending' END,
			completed_at = CASE WHEN stale.superseded THEN now() END,
			started_at = NULL, scheduled_at = now(), updated_at = now()
		FROM stale WHERE j.id = stale.id`,
		q.config.TableName)

	res, err := q.db.NewRaw(query, threshold.Seconds()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs failed: %w", err)
	}
	count, _ := res.RowsAffected()
	if count > 0 {
		q.log.Warn("recovered stale jobs",
			slog.Int64("count", count),
			slog.Duration("threshold", threshold))
	}
	return int(count), nil
}

// PurgeCompleted deletes completed jobs older than age.
func (q *Queue) PurgeCompleted(ctx context.Context, age time.Duration) (int, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE status = 'completed' AND completed_at < now() - make_interval(secs => ?)`,
		q.config.TableName)

	res, err := q.db.NewRaw(query, age.Seconds()).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge completed jobs failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats represents queue statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'processing') AS processing,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM %s`, q.config.TableName)

	stats := &Stats{}
	if err := q.db.QueryRowContext(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Completed, &stats.Failed); err != nil {
		return nil, fmt.Errorf("get stats failed: %w", err)
	}
	return stats, nil
}

const maxErrorLength = 500

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
