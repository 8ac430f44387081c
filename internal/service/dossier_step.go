package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/store"
)

// DossierStep researches one prospect for a claimed dossier job and records
// the outcome: artifact first, then the job.
type DossierStep struct {
	sessions *SessionService
	store    *store.Store
	queue    *JobQueue
	provider *research.Provider
	logger   *zap.Logger
}

func NewDossierStep(sessions *SessionService, st *store.Store, queue *JobQueue, provider *research.Provider, logger *zap.Logger) *DossierStep {
	return &DossierStep{
		sessions: sessions,
		store:    st,
		queue:    queue,
		provider: provider,
		logger:   logger,
	}
}

// Begin marks the job's prospect as researching. Called by the executor
// right after it claims the job.
func (s *DossierStep) Begin(ctx context.Context, job *model.Job) error {
	_, err := s.store.UpdateProspect(ctx, job.SessionID, job.TargetKey, func(p *model.Prospect) (bool, error) {
		p.Status = model.DossierStatusResearching
		p.Error = nil
		return true, nil
	})
	return err
}

// Run performs the research for task. Provider failures are recorded on the
// dossier and job and are not returned; only storage errors are.
func (s *DossierStep) Run(ctx context.Context, task model.DossierTask) error {
	job, err := s.queue.Get(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", task.JobID, err)
	}
	if job.Status != model.JobStatusRunning || (task.Attempt > 0 && job.Attempts != task.Attempt) {
		s.logger.Debug("Skipping superseded dossier task",
			zap.String("jobId", job.ID), zap.String("status", string(job.Status)), zap.Int("attempt", task.Attempt))
		return nil
	}

	log := s.logger.With(zap.String("jobId", job.ID), zap.String("sessionId", job.SessionID), zap.String("prospect", job.TargetKey))

	sess, err := s.store.GetSession(ctx, job.SessionID)
	if errors.Is(err, model.ErrNotFound) {
		return s.fail(ctx, job, task.Attempt, "Session no longer exists")
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	prospect, err := s.store.GetProspect(ctx, job.SessionID, job.TargetKey)
	if errors.Is(err, model.ErrNotFound) {
		return s.fail(ctx, job, task.Attempt, "Prospect no longer exists")
	}
	if err != nil {
		return fmt.Errorf("failed to load prospect: %w", err)
	}

	log.Info("Researching dossier")
	dossier, err := s.provider.ResearchDossier(ctx, sess.Criteria, prospect)
	if err != nil {
		log.Warn("Dossier research failed", zap.Error(err))
		return s.fail(ctx, job, task.Attempt, research.UserMessage(err))
	}

	now := s.store.Now()
	won, err := s.store.FinishDossierJob(ctx, job, model.JobStatusComplete, model.JobUpdate{Attempt: task.Attempt}, func(p *model.Prospect) {
		if job.Force || !weaker(dossier, p.Dossier) {
			p.Dossier = dossier
		}
		p.Status = model.DossierStatusReady
		p.Error = nil
		p.LastUpdated = &now
	})
	if err != nil {
		return fmt.Errorf("failed to save dossier: %w", err)
	}
	if !won {
		log.Info("Dossier result discarded, job was reclaimed", zap.Int("attempt", task.Attempt))
		return nil
	}
	log.Info("Dossier ready", zap.Int("score", dossier.Score), zap.Bool("lowConfidence", dossier.LowConfidence))
	return nil
}

// Abort fails the task's job after an unexpected crash.
func (s *DossierStep) Abort(ctx context.Context, task model.DossierTask, msg string) error {
	job, err := s.queue.Get(ctx, task.JobID)
	if err != nil {
		return err
	}
	return s.fail(ctx, job, task.Attempt, msg)
}

// fail records msg on the dossier and fails the job, unless the job has
// moved past attempt.
func (s *DossierStep) fail(ctx context.Context, job *model.Job, attempt int, msg string) error {
	_, err := s.store.FinishDossierJob(ctx, job, model.JobStatusFailed, model.JobUpdate{Error: msg, Attempt: attempt}, func(p *model.Prospect) {
		p.Status = model.DossierStatusFailed
		p.Error = &msg
	})
	if err != nil {
		return fmt.Errorf("failed to record dossier failure: %w", err)
	}
	return nil
}

// weaker reports whether next is a worse artifact than a dossier already on
// record.
func weaker(next, cur *model.Dossier) bool {
	if cur == nil || cur.LowConfidence {
		return false
	}
	return next.LowConfidence || next.Confidence < cur.Confidence
}

// ForceRefresh re-queues research for a prospect whose dossier is ready or
// failed. When a refresh is already pending it returns that job instead.
func (s *DossierStep) ForceRefresh(ctx context.Context, sessionID, key string, caller *string) (*model.RefreshProspectResponse, error) {
	if _, err := s.sessions.Authorize(ctx, sessionID, caller); err != nil {
		return nil, err
	}

	requeued := false
	prospect, err := s.store.UpdateProspect(ctx, sessionID, key, func(p *model.Prospect) (bool, error) {
		requeued = false
		if !p.Status.Terminal() {
			return false, nil
		}
		p.Status = model.DossierStatusQueued
		p.Error = nil
		requeued = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	resp := &model.RefreshProspectResponse{}
	if requeued {
		job, err := s.queue.Enqueue(ctx, sessionID, model.JobTypeDossier, key, true)
		if err != nil {
			return nil, err
		}
		if err := s.sessions.MarkResearching(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		resp.Job = job
		s.logger.Info("Dossier refresh queued", zap.String("sessionId", sessionID), zap.String("prospect", key))
	} else {
		jobs, err := s.queue.List(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		resp.Job = ActiveFor(jobs, model.JobTypeDossier, key)
	}
	resp.Prospect = prospect.Summarize()
	return resp, nil
}
