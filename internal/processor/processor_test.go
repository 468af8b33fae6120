package taskprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gitlab.ozon.dev/qwestard/dispatch/internal/logging"
	"gitlab.ozon.dev/qwestard/dispatch/internal/repository"
)

type failure struct {
	attempt int
	status  repository.TaskStatus
	next    time.Time
}

type fakeRepo struct {
	pending    []*repository.Task
	processing []int64
	deleted    []int64
	failures   map[int64]failure
}

func (r *fakeRepo) CreateTask(context.Context, []byte) error { return nil }

func (r *fakeRepo) GetPendingTasks(_ context.Context, limit, _ int) ([]*repository.Task, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeRepo) MarkTaskProcessing(_ context.Context, id int64) error {
	r.processing = append(r.processing, id)
	return nil
}

func (r *fakeRepo) DeleteTask(_ context.Context, id int64) error {
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRepo) UpdateTaskFailure(_ context.Context, id int64, attempt int, status repository.TaskStatus, next time.Time) error {
	if r.failures == nil {
		r.failures = map[int64]failure{}
	}
	r.failures[id] = failure{attempt: attempt, status: status, next: next}
	return nil
}

type fakeProducer struct {
	fail map[string]bool
	sent []string
}

func (p *fakeProducer) Publish(topic string, msg []byte) error {
	if p.fail[string(msg)] {
		return errors.New("broker down")
	}
	p.sent = append(p.sent, topic+":"+string(msg))
	return nil
}

func newProcessor(repo *fakeRepo, prod *fakeProducer, now time.Time) *TaskProcessor {
	p := NewTaskProcessor(repo, prod, "audit", logging.Discard(), time.Second, 10)
	p.now = func() time.Time { return now }
	return p
}

func TestProcessPendingPublishesAndDeletes(t *testing.T) {
	repo := &fakeRepo{pending: []*repository.Task{
		{ID: 1, AuditData: []byte("a")},
		{ID: 2, AuditData: []byte("b")},
	}}
	prod := &fakeProducer{}

	newProcessor(repo, prod, time.Now()).ProcessPending(context.Background())

	assert.Equal(t, []string{"audit:a", "audit:b"}, prod.sent)
	assert.Equal(t, []int64{1, 2}, repo.processing)
	assert.Equal(t, []int64{1, 2}, repo.deleted)
	assert.Empty(t, repo.failures)
}

func TestProcessPendingReschedulesFailures(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{pending: []*repository.Task{
		{ID: 1, AuditData: []byte("bad"), AttemptCount: 0},
		{ID: 2, AuditData: []byte("worse"), AttemptCount: 2},
	}}
	prod := &fakeProducer{fail: map[string]bool{"bad": true, "worse": true}}

	newProcessor(repo, prod, now).ProcessPending(context.Background())

	assert.Empty(t, repo.deleted)
	assert.Equal(t, failure{attempt: 1, status: repository.TaskStatusFailed, next: now.Add(2 * time.Second)}, repo.failures[1])
	assert.Equal(t, repository.TaskStatusNoAttemptsLeft, repo.failures[2].status)
	assert.Equal(t, 3, repo.failures[2].attempt)
}
