package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
)

const (
	TaskTypeDossier = "dossier:research"
	QueueResearch   = "research"
)

// Dispatcher hands a claimed dossier job to something that will run it
// without blocking the poll that claimed it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.DossierTask) error
}

// TaskRunner runs one dossier task to a terminal state.
type TaskRunner interface {
	Run(ctx context.Context, task model.DossierTask) error
	Abort(ctx context.Context, task model.DossierTask, msg string) error
}

// InlineDispatcher runs each task on its own goroutine inside this process.
type InlineDispatcher struct {
	runner  TaskRunner
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewInlineDispatcher(runner TaskRunner, timeout time.Duration, logger *zap.Logger) *InlineDispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &InlineDispatcher{runner: runner, timeout: timeout, logger: logger}
}

func (d *InlineDispatcher) Dispatch(_ context.Context, task model.DossierTask) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Dossier task panicked", zap.String("jobId", task.JobID), zap.Any("panic", r))
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := d.runner.Abort(ctx, task, "Research failed unexpectedly"); err != nil {
					d.logger.Error("Failed to record aborted task", zap.String("jobId", task.JobID), zap.Error(err))
				}
			}
		}()

		// The claiming request finishes long before research does.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.runner.Run(ctx, task); err != nil {
			d.logger.Error("Dossier task failed", zap.String("jobId", task.JobID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}

// QueueDispatcher enqueues tasks on asynq for a worker process to run.
type QueueDispatcher struct {
	client  *asynq.Client
	timeout time.Duration
}

func NewQueueDispatcher(client *asynq.Client, timeout time.Duration) *QueueDispatcher {
	return &QueueDispatcher{client: client, timeout: timeout}
}

func NewDossierTask(task model.DossierTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDossier, payload), nil
}

// Dispatch enqueues task once per job attempt. Re-enqueueing the same attempt
// is a no-op.
func (d *QueueDispatcher) Dispatch(ctx context.Context, task model.DossierTask) error {
	t, err := NewDossierTask(task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	opts := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%d", task.JobID, task.Attempt)),
		asynq.Queue(QueueResearch),
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if d.timeout > 0 {
		opts = append(opts, asynq.Timeout(d.timeout))
	}
	_, err = d.client.EnqueueContext(ctx, t, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
