package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/store"
)

// Executor advances a session by at most one job per poll. There is no
// standing worker: work only moves forward while someone is polling.
type Executor struct {
	sessions   *SessionService
	queue      *JobQueue
	store      *store.Store
	dossiers   *DossierStep
	advantages *AdvantageService
	dispatcher Dispatcher
	cfg        config.ExecutorConfig
	logger     *zap.Logger
}

func NewExecutor(sessions *SessionService, queue *JobQueue, st *store.Store, dossiers *DossierStep, advantages *AdvantageService, dispatcher Dispatcher, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		sessions:   sessions,
		queue:      queue,
		store:      st,
		dossiers:   dossiers,
		advantages: advantages,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Advance claims and starts the earliest queued job, or restarts one stale
// running job, then returns the session snapshot. Failures inside the
// started work are recorded on the job and never fail the poll.
func (e *Executor) Advance(ctx context.Context, sessionID string, caller *string) (*model.Snapshot, error) {
	sess, err := e.sessions.Authorize(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}

	jobs, err := e.queue.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	if next := firstQueued(jobs); next != nil {
		if err := e.claim(ctx, sess, next); err != nil {
			return nil, err
		}
	} else if stale := e.firstStale(jobs); stale != nil {
		if err := e.reclaim(ctx, sess, stale); err != nil {
			return nil, err
		}
	}

	return e.sessions.Snapshot(ctx, sess)
}

func firstQueued(jobs []model.Job) *model.Job {
	for i := range jobs {
		if jobs[i].Status == model.JobStatusQueued {
			return &jobs[i]
		}
	}
	return nil
}

func (e *Executor) firstStale(jobs []model.Job) *model.Job {
	if e.cfg.StaleAfter <= 0 {
		return nil
	}
	now := e.store.Now()
	for i := range jobs {
		j := &jobs[i]
		if j.Status == model.JobStatusRunning && j.StartedAt != nil && now.Sub(*j.StartedAt) >= e.cfg.StaleAfter {
			return j
		}
	}
	return nil
}

func (e *Executor) claim(ctx context.Context, sess *model.Session, job *model.Job) error {
	running, won, err := e.queue.Transition(ctx, job.ID, model.JobStatusQueued, model.JobStatusRunning, model.JobUpdate{})
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !won {
		// another poll claimed it and is dispatching
		return nil
	}
	e.logger.Debug("Job claimed", zap.String("jobId", job.ID), zap.String("type", string(job.Type)))
	e.start(ctx, sess, running)
	return nil
}

func (e *Executor) reclaim(ctx context.Context, sess *model.Session, job *model.Job) error {
	if job.Attempts >= e.cfg.MaxAttempts {
		msg := fmt.Sprintf("Research stalled after %d attempts", job.Attempts)
		failed, won, err := e.queue.Abandon(ctx, job, msg)
		if err != nil {
			return fmt.Errorf("failed to abandon job: %w", err)
		}
		if won {
			e.logger.Warn("Stalled job abandoned", zap.String("jobId", job.ID), zap.Int("attempts", job.Attempts))
			e.markTargetFailed(ctx, sess, failed, msg)
		}
		return nil
	}

	reclaimed, won, err := e.queue.Reclaim(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to reclaim job: %w", err)
	}
	if won {
		e.logger.Warn("Stale job reclaimed", zap.String("jobId", job.ID), zap.Int("attempt", reclaimed.Attempts))
		e.start(ctx, sess, reclaimed)
	}
	return nil
}

// start runs the unit of work for a job this poll just claimed.
func (e *Executor) start(ctx context.Context, sess *model.Session, job *model.Job) {
	log := e.logger.With(zap.String("jobId", job.ID), zap.String("sessionId", sess.ID))

	switch job.Type {
	case model.JobTypeDossier:
		if err := e.dossiers.Begin(ctx, job); err != nil {
			log.Error("Failed to mark dossier researching", zap.Error(err))
		}
		task := model.DossierTask{JobID: job.ID, SessionID: job.SessionID, Attempt: job.Attempts}
		if err := e.dispatcher.Dispatch(ctx, task); err != nil {
			log.Error("Dispatch failed", zap.Error(err))
			if aerr := e.dossiers.Abort(ctx, task, "Could not start research"); aerr != nil {
				log.Error("Failed to record dispatch failure", zap.Error(aerr))
			}
		}
	case model.JobTypeAdvantageBrief:
		if err := e.advantages.RunJob(ctx, sess, job); err != nil {
			log.Error("Advantage brief job could not be recorded", zap.Error(err))
		}
	default:
		if _, err := e.queue.Fail(ctx, job.ID, job.Attempts, "Unknown job type"); err != nil {
			log.Error("Failed to fail unknown job", zap.Error(err))
		}
	}
}

func (e *Executor) markTargetFailed(ctx context.Context, sess *model.Session, job *model.Job, msg string) {
	var err error
	switch job.Type {
	case model.JobTypeDossier:
		_, err = e.store.UpdateProspect(ctx, sess.ID, job.TargetKey, func(p *model.Prospect) (bool, error) {
			p.Status = model.DossierStatusFailed
			p.Error = &msg
			return true, nil
		})
	case model.JobTypeAdvantageBrief:
		err = e.advantages.setStatus(ctx, sess.ID, model.BriefStatusFailed, nil, nil, msg)
	}
	if err != nil {
		e.logger.Error("Failed to mark stalled target failed", zap.String("jobId", job.ID), zap.Error(err))
	}
}
