package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/service"
)

// DossierWorker runs dossier tasks taken off the research queue.
type DossierWorker struct {
	runner service.TaskRunner
	logger *zap.Logger
}

func NewDossierWorker(runner service.TaskRunner, logger *zap.Logger) *DossierWorker {
	return &DossierWorker{runner: runner, logger: logger}
}

// ProcessTask handles dossier:research tasks. Tasks are enqueued with no
// retries; a lost or failed attempt is recovered by the next poll's stale
// reclaim instead.
func (w *DossierWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.DossierTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal dossier task: %v: %w", err, asynq.SkipRetry)
	}
	if task.JobID == "" {
		return fmt.Errorf("dossier task without job id: %w", asynq.SkipRetry)
	}

	w.logger.Info("Starting dossier task",
		zap.String("jobId", task.JobID),
		zap.String("sessionId", task.SessionID),
		zap.Int("attempt", task.Attempt),
	)
	if err := w.runner.Run(ctx, task); err != nil {
		w.logger.Error("Dossier task failed", zap.String("jobId", task.JobID), zap.Error(err))
		return err
	}
	return nil
}

// Register wires the worker's handlers into mux.
func (w *DossierWorker) Register(mux *asynq.ServeMux) {
	mux.Handle(service.TaskTypeDossier, w)
}
