package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/cache"
	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/store"
)

// AdvantageService produces the session's competitive positioning brief.
// The stored brief acts as its own cache: a ready brief is returned as is
// unless a refresh is forced.
type AdvantageService struct {
	sessions *SessionService
	store    *store.Store
	queue    *JobQueue
	cache    *cache.ResultCache
	provider *research.Provider
	cfg      config.CacheConfig
	logger   *zap.Logger
}

func NewAdvantageService(sessions *SessionService, st *store.Store, queue *JobQueue, rc *cache.ResultCache, provider *research.Provider, cfg config.CacheConfig, logger *zap.Logger) *AdvantageService {
	return &AdvantageService{
		sessions: sessions,
		store:    st,
		queue:    queue,
		cache:    rc,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// ResearchAdvantages returns the session's brief, researching it now or,
// when deferred, queueing it for a later poll to run.
func (s *AdvantageService) ResearchAdvantages(ctx context.Context, sessionID string, caller *string, req *model.ResearchAdvantagesRequest) (*model.ResearchAdvantagesResponse, error) {
	sess, err := s.sessions.Authorize(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}
	criteria := sess.Criteria
	if req.Criteria != nil {
		criteria = req.Criteria.Normalize()
	}

	if !req.Force {
		if existing, err := s.store.GetBrief(ctx, sessionID); err == nil && existing.Status == model.BriefStatusReady {
			return &model.ResearchAdvantagesResponse{Brief: existing.Brief, Status: existing.Status}, nil
		}
	}

	if req.Deferred {
		return s.enqueueBrief(ctx, sess, criteria)
	}

	brief, err := s.research(ctx, sess, criteria)
	if err != nil {
		return nil, err
	}
	return &model.ResearchAdvantagesResponse{Brief: brief, Status: model.BriefStatusReady}, nil
}

func (s *AdvantageService) enqueueBrief(ctx context.Context, sess *model.Session, criteria model.Criteria) (*model.ResearchAdvantagesResponse, error) {
	jobs, err := s.queue.List(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if active := ActiveFor(jobs, model.JobTypeAdvantageBrief, ""); active != nil {
		return &model.ResearchAdvantagesResponse{Status: model.BriefStatusPending, Job: active}, nil
	}

	_, err = s.store.UpdateBrief(ctx, sess.ID, func(b *model.AdvantageBrief) (bool, error) {
		initBrief(b, sess.ID)
		b.Competitors = criteria.Competitors
		b.Status = model.BriefStatusPending
		b.Error = nil
		b.UpdatedAt = s.store.Now()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save brief: %w", err)
	}

	job, err := s.queue.Enqueue(ctx, sess.ID, model.JobTypeAdvantageBrief, "", true)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.MarkResearching(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return &model.ResearchAdvantagesResponse{Status: model.BriefStatusPending, Job: job}, nil
}

// RunJob runs a claimed advantage_brief job to completion inside the poll.
func (s *AdvantageService) RunJob(ctx context.Context, sess *model.Session, job *model.Job) error {
	criteria := sess.Criteria
	if b, err := s.store.GetBrief(ctx, sess.ID); err == nil && len(b.Competitors) > 0 {
		criteria.Competitors = b.Competitors
	}

	if _, err := s.research(ctx, sess, criteria); err != nil {
		s.logger.Warn("Advantage brief job failed", zap.String("jobId", job.ID), zap.Error(err))
		_, ferr := s.queue.Fail(ctx, job.ID, job.Attempts, research.UserMessage(err))
		return ferr
	}
	_, err := s.queue.Complete(ctx, job.ID, job.Attempts)
	return err
}

// research takes the brief through researching to ready or failed.
// Provider errors are recorded on the brief and returned.
func (s *AdvantageService) research(ctx context.Context, sess *model.Session, criteria model.Criteria) (*model.Brief, error) {
	if err := s.setStatus(ctx, sess.ID, model.BriefStatusResearching, nil, nil, ""); err != nil {
		return nil, err
	}

	competitors := criteria.Competitors
	if len(competitors) == 0 {
		found, err := s.lookupCompetitors(ctx, criteria)
		if err != nil {
			return nil, s.recordFailure(ctx, sess.ID, err)
		}
		competitors = found
	}

	brief, err := s.provider.ResearchAdvantages(ctx, criteria, competitors)
	if err != nil {
		return nil, s.recordFailure(ctx, sess.ID, err)
	}
	if err := s.setStatus(ctx, sess.ID, model.BriefStatusReady, brief, competitors, ""); err != nil {
		return nil, err
	}
	s.logger.Info("Advantage brief ready", zap.String("sessionId", sess.ID), zap.Int("advantages", len(brief.Advantages)))
	return brief, nil
}

func (s *AdvantageService) lookupCompetitors(ctx context.Context, criteria model.Criteria) ([]string, error) {
	key := criteria
	key.Competitors = nil
	names, cached, err := cache.GetOrLoadJSON(ctx, s.cache, key.Hash(), "competitors", s.cfg.CompetitorsTTL,
		func(ctx context.Context) ([]string, bool, error) {
			names, low, err := s.provider.LookupCompetitors(ctx, criteria)
			return names, !low, err
		})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Competitor lookup", zap.Strings("competitors", names), zap.Bool("cached", cached))
	return names, nil
}

func (s *AdvantageService) recordFailure(ctx context.Context, sessionID string, cause error) error {
	msg := research.UserMessage(cause)
	if err := s.setStatus(ctx, sessionID, model.BriefStatusFailed, nil, nil, msg); err != nil {
		s.logger.Error("Failed to record brief failure", zap.String("sessionId", sessionID), zap.Error(err))
	}
	return cause
}

func (s *AdvantageService) setStatus(ctx context.Context, sessionID string, status model.BriefStatus, brief *model.Brief, competitors []string, errMsg string) error {
	_, err := s.store.UpdateBrief(ctx, sessionID, func(b *model.AdvantageBrief) (bool, error) {
		initBrief(b, sessionID)
		b.Status = status
		b.Error = nil
		if errMsg != "" {
			b.Error = &errMsg
		}
		if brief != nil {
			b.Brief = brief
			b.Competitors = competitors
		}
		b.UpdatedAt = s.store.Now()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to save brief: %w", err)
	}
	return nil
}

func initBrief(b *model.AdvantageBrief, sessionID string) {
	if b.ID == "" {
		b.ID = uuid.New().String()
		b.SessionID = sessionID
	}
}
