package repository_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.ozon.dev/qwestard/dispatch/internal/db"
	"gitlab.ozon.dev/qwestard/dispatch/internal/repository"
)

var (
	conn *sqlx.DB
	repo *repository.PostgresTaskRepository
)

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DSN")
	if dsn == "" {
		log.Println("TEST_DSN not set, skipping outbox repository tests")
		os.Exit(0)
	}
	var err error
	conn, err = db.NewDB(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	repo = repository.NewPostgresTaskRepository(conn)
	code := m.Run()
	conn.Close()
	os.Exit(code)
}

func cleanTasks(t *testing.T) {
	t.Helper()
	_, err := conn.Exec(`TRUNCATE audit_tasks`)
	require.NoError(t, err)
}

func TestCreateAndFetchPending(t *testing.T) {
	cleanTasks(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, []byte("first")))
	require.NoError(t, repo.CreateTask(ctx, []byte("second")))

	tasks, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, []byte("first"), tasks[0].AuditData)
	assert.Equal(t, repository.TaskStatusCreated, tasks[0].Status)
	assert.Equal(t, 0, tasks[0].AttemptCount)
}

func TestProcessingTasksAreNotPending(t *testing.T) {
	cleanTasks(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, []byte("x")))
	tasks, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, repo.MarkTaskProcessing(ctx, tasks[0].ID))
	tasks, err = repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestFailedTaskWaitsForRetry(t *testing.T) {
	cleanTasks(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, []byte("x")))
	tasks, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	id := tasks[0].ID

	require.NoError(t, repo.UpdateTaskFailure(ctx, id, 1, repository.TaskStatusFailed, time.Now().Add(time.Hour)))
	tasks, err = repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	require.NoError(t, repo.UpdateTaskFailure(ctx, id, 1, repository.TaskStatusFailed, time.Now().Add(-time.Second)))
	tasks, err = repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].AttemptCount)

	require.NoError(t, repo.UpdateTaskFailure(ctx, id, 3, repository.TaskStatusNoAttemptsLeft, time.Now().Add(-time.Second)))
	tasks, err = repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDeleteTask(t *testing.T) {
	cleanTasks(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, []byte("x")))
	tasks, err := repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, repo.DeleteTask(ctx, tasks[0].ID))
	tasks, err = repo.GetPendingTasks(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
