package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/model"
)

// ExportService writes session snapshots to object storage and hands back a
// time-limited download link.
type ExportService struct {
	sessions *SessionService
	storage  client.ObjectStore
	expiry   time.Duration
	logger   *zap.Logger
}

// NewExportService accepts a nil storage; exports then fail with
// ErrStorageUnavailable.
func NewExportService(sessions *SessionService, storage client.ObjectStore, expiry time.Duration, logger *zap.Logger) *ExportService {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &ExportService{sessions: sessions, storage: storage, expiry: expiry, logger: logger}
}

func (s *ExportService) Export(ctx context.Context, sessionID string, caller *string) (*model.ExportResponse, error) {
	if s.storage == nil {
		return nil, model.ErrStorageUnavailable
	}
	snap, err := s.sessions.GetSnapshot(ctx, sessionID, caller)
	if err != nil {
		return nil, err
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("exports/%s/%s.json", sessionID, now.Format("20060102T150405Z"))
	if err := s.storage.Put(ctx, key, body, "application/json"); err != nil {
		return nil, err
	}
	url, err := s.storage.SignedURL(ctx, key, s.expiry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session exported", zap.String("sessionId", sessionID), zap.String("key", key), zap.Int("bytes", len(body)))
	return &model.ExportResponse{Key: key, URL: url, ExpiresAt: now.Add(s.expiry)}, nil
}
