package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/store"
)

// AccountPlanService generates account plans on demand. Plans are cheap and
// idempotent, so they bypass the job queue and are not stored.
type AccountPlanService struct {
	sessions *SessionService
	store    *store.Store
	provider *research.Provider
	logger   *zap.Logger
}

func NewAccountPlanService(sessions *SessionService, st *store.Store, provider *research.Provider, logger *zap.Logger) *AccountPlanService {
	return &AccountPlanService{sessions: sessions, store: st, provider: provider, logger: logger}
}

// GenerateAccountPlan composes the ready brief, the prospect's usable
// dossier and the rep's notes into a plan. Provider errors are returned.
func (s *AccountPlanService) GenerateAccountPlan(ctx context.Context, sessionID, key string, caller *string, req *model.AccountPlanRequest) (*model.AccountPlanResponse, error) {
	sess, err := s.sessions.Authorize(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}
	prospect, err := s.store.GetProspect(ctx, sessionID, key)
	if err != nil {
		return nil, err
	}

	in := research.PlanInput{
		Criteria: sess.Criteria,
		Prospect: prospect,
		RepNotes: req.RepNotes,
	}
	if prospect.Status != model.DossierStatusFailed {
		in.Dossier = prospect.Dossier
	}
	brief, err := s.store.GetBrief(ctx, sessionID)
	switch {
	case err == nil:
		if brief.Status == model.BriefStatusReady {
			in.Brief = brief.Brief
		}
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	plan, err := s.provider.GenerateAccountPlan(ctx, in)
	if err != nil {
		s.logger.Warn("Account plan generation failed", zap.String("sessionId", sessionID), zap.String("prospect", key), zap.Error(err))
		return nil, err
	}
	return &model.AccountPlanResponse{Plan: *plan}, nil
}
