package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/store"
)

// SessionService creates discovery sessions and assembles their snapshots.
type SessionService struct {
	store  *store.Store
	cfg    config.SessionsConfig
	logger *zap.Logger
}

func NewSessionService(st *store.Store, cfg config.SessionsConfig, logger *zap.Logger) *SessionService {
	return &SessionService{store: st, cfg: cfg, logger: logger}
}

// CreateSession starts a session for criteria, or returns the caller's
// session with identical criteria from inside the dedup window.
func (s *SessionService) CreateSession(ctx context.Context, caller *string, criteria model.Criteria) (*model.CreateSessionResponse, error) {
	if caller == nil && !s.cfg.AllowAnonymous {
		return nil, model.ErrAuthRequired
	}

	normalized := criteria.Normalize()
	now := s.store.Now()
	sess := &model.Session{
		ID:           uuid.New().String(),
		OwnerID:      caller,
		Criteria:     normalized,
		CriteriaHash: normalized.Hash(),
		Status:       model.SessionStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	got, existing, err := s.store.CreateSession(ctx, sess, s.cfg.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if existing {
		s.logger.Debug("Returning existing session", zap.String("sessionId", got.ID), zap.String("criteriaHash", got.CriteriaHash))
	} else {
		s.logger.Info("Session created", zap.String("sessionId", got.ID), zap.Bool("anonymous", caller == nil))
	}

	return &model.CreateSessionResponse{
		SessionID:  got.ID,
		Status:     got.Status,
		IsExisting: existing,
	}, nil
}

// Authorize loads the session and checks that caller may read it.
func (s *SessionService) Authorize(ctx context.Context, sessionID string, caller *string) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.ReadableBy(caller) {
		return nil, model.ErrAccessDenied
	}
	return sess, nil
}

// GetSnapshot returns the session's current state without advancing it.
func (s *SessionService) GetSnapshot(ctx context.Context, sessionID string, caller *string) (*model.Snapshot, error) {
	sess, err := s.Authorize(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(ctx, sess)
}

// Snapshot reads jobs, prospects and the brief for sess, reconciles the
// stored session status with its jobs and assembles the result.
func (s *SessionService) Snapshot(ctx context.Context, sess *model.Session) (*model.Snapshot, error) {
	jobs, err := s.store.ListJobs(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	prospects, err := s.store.ListProspects(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prospects: %w", err)
	}

	sess, err = s.reconcileStatus(ctx, sess, jobs)
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		Session:              *sess,
		AdvantageBriefStatus: model.BriefStatusPending,
		Prospects:            make([]model.ProspectSummary, 0, len(prospects)),
		Jobs:                 jobs,
		Progress:             model.AggregateProgress(jobs),
	}
	for i := range prospects {
		snap.Prospects = append(snap.Prospects, prospects[i].Summarize())
	}

	brief, err := s.store.GetBrief(ctx, sess.ID)
	switch {
	case err == nil:
		snap.AdvantageBriefStatus = brief.Status
		if brief.Status == model.BriefStatusReady {
			snap.AdvantageBrief = brief.Brief
		}
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("failed to load advantage brief: %w", err)
	}

	return snap, nil
}

func (s *SessionService) reconcileStatus(ctx context.Context, sess *model.Session, jobs []model.Job) (*model.Session, error) {
	if model.AggregateSessionStatus(sess.Status, jobs) == sess.Status {
		return sess, nil
	}
	updated, err := s.store.UpdateSession(ctx, sess.ID, func(cur *model.Session) (bool, error) {
		next := model.AggregateSessionStatus(cur.Status, jobs)
		if next == cur.Status {
			return false, nil
		}
		cur.Status = next
		cur.UpdatedAt = s.store.Now()
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return updated, nil
}

// MarkResearching moves a session into researching after new work is queued.
func (s *SessionService) MarkResearching(ctx context.Context, sessionID string) error {
	_, err := s.store.UpdateSession(ctx, sessionID, func(cur *model.Session) (bool, error) {
		if cur.Status == model.SessionStatusResearching {
			return false, nil
		}
		cur.Status = model.SessionStatusResearching
		cur.UpdatedAt = s.store.Now()
		return true, nil
	})
	return err
}
