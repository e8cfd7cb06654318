// Package asynqadp implements the domain Queue port on asynq: durable
// Redis-backed jobs with delayed delivery, task-ID dedup, bounded retries
// and lease-based stalled recovery.
package asynqadp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// Task type names and queue names.
const (
	TaskProcessSchedule = "schedule:process"
	TaskPostComment     = "comment:post"
	TaskSimulateView    = "view:simulate"

	QueueSchedules = "schedules"
	QueuePosts     = "posts"
	QueueViews     = "views"
)

// Transient classes retry up to 3 times; terminal classes are recorded by
// the handler which then returns nil so the queue never re-delivers.
const defaultMaxRetry = 3

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type taskRemover interface {
	DeleteTask(queue, id string) error
}

// Queue enqueues engine tasks.
type Queue struct {
	client    enqueuer
	inspector taskRemover
}

// New builds a Queue from a redis:// URL.
func New(redisURL string) (*Queue, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=queue.new redis: %w", err)
	}
	return &Queue{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}, nil
}

// NewWithClient wires a custom enqueuer; tests use a fake.
func NewWithClient(c enqueuer) *Queue { return &Queue{client: c} }

func (q *Queue) enqueue(ctx domain.Context, taskType, queue string, payload any, opts domain.EnqueueOptions) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=queue.enqueue type=%s: %w", taskType, err)
	}
	options := []asynq.Option{
		asynq.Queue(queue),
		asynq.Retention(24 * time.Hour),
	}
	if opts.MaxRetry >= 0 {
		options = append(options, asynq.MaxRetry(opts.MaxRetry))
	} else {
		options = append(options, asynq.MaxRetry(defaultMaxRetry))
	}
	if opts.Delay > 0 {
		options = append(options, asynq.ProcessIn(opts.Delay))
	}
	if opts.TaskID != "" {
		options = append(options, asynq.TaskID(opts.TaskID))
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(taskType, b), options...)
	if err != nil {
		// A second enqueue under the same task ID is the dedup contract
		// working, not a failure.
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("op=queue.enqueue type=%s: %w", taskType, err)
	}
	observability.EnqueueJob(queue)
	return nil
}

// EnqueueProcessSchedule queues one batch run for a schedule.
func (q *Queue) EnqueueProcessSchedule(ctx domain.Context, p domain.ProcessSchedulePayload, opts domain.EnqueueOptions) error {
	return q.enqueue(ctx, TaskProcessSchedule, QueueSchedules, p, opts)
}

// EnqueuePostComment queues one posting attempt.
func (q *Queue) EnqueuePostComment(ctx domain.Context, p domain.PostCommentPayload, opts domain.EnqueueOptions) error {
	return q.enqueue(ctx, TaskPostComment, QueuePosts, p, opts)
}

// EnqueueSimulateView queues one simulated watch session.
func (q *Queue) EnqueueSimulateView(ctx domain.Context, p domain.SimulateViewPayload, opts domain.EnqueueOptions) error {
	return q.enqueue(ctx, TaskSimulateView, QueueViews, p, opts)
}

// RemoveTask best-effort deletes a pending or delayed task.
func (q *Queue) RemoveTask(_ domain.Context, queue, taskID string) error {
	if q.inspector == nil {
		return nil
	}
	err := q.inspector.DeleteTask(queue, taskID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("op=queue.remove queue=%s id=%s: %w", queue, taskID, err)
	}
	return nil
}

var _ domain.Queue = (*Queue)(nil)
