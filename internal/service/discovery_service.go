package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/cache"
	"github.com/prospectlens/api/internal/config"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/internal/store"
)

const defaultDiscoveryLimit = 10

// DiscoveryService finds candidate prospects for a session and queues a
// dossier job for each new one.
type DiscoveryService struct {
	sessions *SessionService
	store    *store.Store
	queue    *JobQueue
	cache    *cache.ResultCache
	provider *research.Provider
	cfg      config.CacheConfig
	logger   *zap.Logger
}

func NewDiscoveryService(sessions *SessionService, st *store.Store, queue *JobQueue, rc *cache.ResultCache, provider *research.Provider, cfg config.CacheConfig, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		sessions: sessions,
		store:    st,
		queue:    queue,
		cache:    rc,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// DiscoverProspects runs (or replays from cache) one page of prospect
// discovery and merges the results into the session.
func (s *DiscoveryService) DiscoverProspects(ctx context.Context, sessionID string, caller *string, req *model.DiscoverProspectsRequest) (*model.DiscoverProspectsResponse, error) {
	sess, err := s.sessions.Authorize(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}
	criteria := sess.Criteria
	if req.Criteria != nil {
		criteria = req.Criteria.Normalize()
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultDiscoveryLimit
	}

	inputHash := model.HashParts(criteria.Hash(), "prospects", strconv.Itoa(limit))
	candidates, cached, err := cache.GetOrLoadJSON(ctx, s.cache, inputHash, strconv.Itoa(req.Page), s.cfg.ProspectsTTL,
		func(ctx context.Context) ([]model.ProspectCandidate, bool, error) {
			found, low, err := s.provider.DiscoverProspects(ctx, criteria, limit, req.Page)
			return found, !low, err
		})
	if err != nil {
		return nil, err
	}

	resp := &model.DiscoverProspectsResponse{
		Prospects: make([]model.ProspectSummary, 0, len(candidates)),
		Jobs:      []model.Job{},
		Cached:    cached,
	}
	seen := make(map[string]bool, len(candidates))
	for _, cand := range candidates {
		key := model.ProspectKey(cand.Name, cand.State)
		if seen[key] {
			continue
		}
		seen[key] = true

		// Whichever discovery creates the prospect queues its job, atomically.
		job := s.queue.NewJob(sessionID, model.JobTypeDossier, key, false)
		p, created, err := s.store.UpsertProspect(ctx, &model.Prospect{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			Key:       key,
			Name:      cand.Name,
			State:     cand.State,
			Category:  cand.Category,
			Latitude:  cand.Latitude,
			Longitude: cand.Longitude,
			Rationale: cand.Rationale,
			Status:    model.DossierStatusQueued,
			CreatedAt: s.store.Now(),
		}, job)
		if err != nil {
			return nil, fmt.Errorf("failed to save prospect %s: %w", key, err)
		}
		resp.Prospects = append(resp.Prospects, p.Summarize())
		if created {
			resp.Jobs = append(resp.Jobs, *job)
		}
	}

	if len(resp.Jobs) > 0 {
		if err := s.sessions.MarkResearching(ctx, sessionID); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
	}

	s.logger.Info("Prospects discovered",
		zap.String("sessionId", sessionID),
		zap.Int("prospects", len(resp.Prospects)),
		zap.Int("newJobs", len(resp.Jobs)),
		zap.Bool("cached", cached),
	)
	return resp, nil
}
