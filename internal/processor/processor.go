// Package taskprocessor relays audit records from the Postgres outbox to
// Kafka.
package taskprocessor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/dispatch/internal/repository"
)

type Publisher interface {
	Publish(topic string, message []byte) error
}

type TaskProcessor struct {
	repo         repository.TaskRepository
	producer     Publisher
	topic        string
	log          logrus.FieldLogger
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	now          func() time.Time
}

func NewTaskProcessor(repo repository.TaskRepository, producer Publisher, topic string, log logrus.FieldLogger, pollInterval time.Duration, limit int) *TaskProcessor {
	return &TaskProcessor{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		log:          log.WithField("component", "outbox"),
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
		now:          time.Now,
	}
}

// Start polls until ctx is cancelled.
func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
			ticker.Reset(p.pollInterval)
		}
	}
}

// ProcessPending publishes one batch of pending tasks. Published tasks are
// deleted; failed ones are rescheduled until they run out of attempts.
func (p *TaskProcessor) ProcessPending(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts)
	if err != nil {
		p.log.WithError(err).Error("fetch pending tasks")
		return
	}
	for _, task := range tasks {
		tlog := p.log.WithField("task_id", task.ID)
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			tlog.WithError(err).Error("mark task processing")
			continue
		}

		if err := p.producer.Publish(p.topic, task.AuditData); err != nil {
			p.update(ctx, task, err)
			continue
		}
		tlog.Debug("task published")
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			tlog.WithError(err).Error("delete task after publish")
		}
	}
}

func (p *TaskProcessor) update(ctx context.Context, task *repository.Task, err error) {
	newAttempt := task.AttemptCount + 1
	newStatus := repository.TaskStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = repository.TaskStatusNoAttemptsLeft
	}
	nextAttempt := p.now().Add(p.retryDelay)
	tlog := p.log.WithFields(logrus.Fields{"task_id": task.ID, "attempt": newAttempt})
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt); errUpd != nil {
		tlog.WithError(errUpd).Error("update task on failure")
	}
	tlog.WithError(err).Warn("publish task failed")
}
