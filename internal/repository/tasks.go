// Package repository keeps the audit outbox: encoded audit records waiting to
// be published to Kafka.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type TaskStatus string

const (
	TaskStatusCreated        TaskStatus = "CREATED"
	TaskStatusProcessing     TaskStatus = "PROCESSING"
	TaskStatusFailed         TaskStatus = "FAILED"
	TaskStatusNoAttemptsLeft TaskStatus = "NO_ATTEMPTS_LEFT"
)

type Task struct {
	ID            int64        `db:"id"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
	AuditData     []byte       `db:"audit_data"`
	Status        TaskStatus   `db:"status"`
	AttemptCount  int          `db:"attempt_count"`
	NextAttemptAt sql.NullTime `db:"next_attempt_at"`
}

type TaskRepository interface {
	CreateTask(ctx context.Context, auditData []byte) error
	GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error)
	MarkTaskProcessing(ctx context.Context, taskID int64) error
	DeleteTask(ctx context.Context, taskID int64) error
	UpdateTaskFailure(ctx context.Context, taskID int64, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error
}

type PostgresTaskRepository struct {
	db *sqlx.DB
}

func NewPostgresTaskRepository(db *sqlx.DB) *PostgresTaskRepository {
	return &PostgresTaskRepository{db: db}
}

func (r *PostgresTaskRepository) CreateTask(ctx context.Context, auditData []byte) error {
	query := `
		INSERT INTO audit_tasks (audit_data, status, attempt_count)
		VALUES ($1, $2, 0)
	`
	_, err := r.db.ExecContext(ctx, query, auditData, TaskStatusCreated)
	return err
}

// GetPendingTasks returns new and retryable tasks whose backoff has elapsed,
// oldest first.
func (r *PostgresTaskRepository) GetPendingTasks(ctx context.Context, limit, maxAttempts int) ([]*Task, error) {
	query := `
		SELECT id, created_at, updated_at, audit_data, status, attempt_count, next_attempt_at
		FROM audit_tasks
		WHERE status IN ($1, $2)
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		  AND attempt_count < $3
		ORDER BY created_at
		LIMIT $4
	`
	var tasks []*Task
	if err := r.db.SelectContext(ctx, &tasks, query, TaskStatusCreated, TaskStatusFailed, maxAttempts, limit); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *PostgresTaskRepository) MarkTaskProcessing(ctx context.Context, taskID int64) error {
	query := `
		UPDATE audit_tasks SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	_, err := r.db.ExecContext(ctx, query, TaskStatusProcessing, taskID)
	return err
}

func (r *PostgresTaskRepository) DeleteTask(ctx context.Context, taskID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_tasks WHERE id = $1`, taskID)
	return err
}

func (r *PostgresTaskRepository) UpdateTaskFailure(ctx context.Context, taskID int64, attemptCount int, newStatus TaskStatus, nextAttemptAt time.Time) error {
	query := `
		UPDATE audit_tasks
		SET status = $1, attempt_count = $2, updated_at = NOW(), next_attempt_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, newStatus, attemptCount, nextAttemptAt, taskID)
	return err
}
