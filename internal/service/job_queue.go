package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/store"
)

// JobQueue is the per-session queue of research jobs. All status changes are
// compare-and-swap writes, so concurrent polls never move a job twice.
type JobQueue struct {
	store *store.Store
}

func NewJobQueue(st *store.Store) *JobQueue {
	return &JobQueue{store: st}
}

// NewJob builds a queued job without storing it.
func (q *JobQueue) NewJob(sessionID string, jobType model.JobType, targetKey string, force bool) *model.Job {
	return &model.Job{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      jobType,
		TargetKey: targetKey,
		Status:    model.JobStatusQueued,
		Progress:  0,
		Force:     force,
		CreatedAt: q.store.Now(),
	}
}

// Enqueue adds a queued job at the end of the session's queue.
func (q *JobQueue) Enqueue(ctx context.Context, sessionID string, jobType model.JobType, targetKey string, force bool) (*model.Job, error) {
	job := q.NewJob(sessionID, jobType, targetKey, force)
	if err := q.store.EnqueueJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return job, nil
}

// List returns the session's jobs in creation order.
func (q *JobQueue) List(ctx context.Context, sessionID string) ([]model.Job, error) {
	return q.store.ListJobs(ctx, sessionID)
}

func (q *JobQueue) Get(ctx context.Context, jobID string) (*model.Job, error) {
	return q.store.GetJob(ctx, jobID)
}

// Transition moves a job from -> to. won is false when the stored status no
// longer equals from.
func (q *JobQueue) Transition(ctx context.Context, jobID string, from, to model.JobStatus, upd model.JobUpdate) (*model.Job, bool, error) {
	return q.store.TransitionJob(ctx, jobID, from, to, upd)
}

// Complete finishes attempt of a running job. won is false when the job was
// reclaimed for a newer attempt or already finished.
func (q *JobQueue) Complete(ctx context.Context, jobID string, attempt int) (bool, error) {
	_, won, err := q.store.TransitionJob(ctx, jobID, model.JobStatusRunning, model.JobStatusComplete, model.JobUpdate{Attempt: attempt})
	return won, err
}

func (q *JobQueue) Fail(ctx context.Context, jobID string, attempt int, msg string) (bool, error) {
	_, won, err := q.store.TransitionJob(ctx, jobID, model.JobStatusRunning, model.JobStatusFailed, model.JobUpdate{Error: msg, Attempt: attempt})
	return won, err
}

// Reclaim restarts a running job that has been silent too long.
func (q *JobQueue) Reclaim(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	return q.store.ReclaimJob(ctx, job.ID, *job.StartedAt)
}

// Abandon fails a running job that ran out of attempts.
func (q *JobQueue) Abandon(ctx context.Context, job *model.Job, msg string) (*model.Job, bool, error) {
	return q.store.FailStaleJob(ctx, job.ID, *job.StartedAt, msg)
}

// ActiveFor returns the queued or running job of jobType targeting key, if any.
func ActiveFor(jobs []model.Job, jobType model.JobType, key string) *model.Job {
	for i := range jobs {
		j := &jobs[i]
		if j.Type == jobType && j.TargetKey == key && !j.Status.Terminal() {
			return j
		}
	}
	return nil
}
