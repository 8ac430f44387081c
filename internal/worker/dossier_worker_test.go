package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/service"
)

type fakeRunner struct {
	ran []model.DossierTask
	err error
}

func (r *fakeRunner) Run(_ context.Context, task model.DossierTask) error {
	r.ran = append(r.ran, task)
	return r.err
}

func (r *fakeRunner) Abort(context.Context, model.DossierTask, string) error {
	return nil
}

func TestProcessTaskRunsDossier(t *testing.T) {
	runner := &fakeRunner{}
	w := NewDossierWorker(runner, zap.NewNop())

	task, err := service.NewDossierTask(model.DossierTask{JobID: "job-1", SessionID: "sess-1", Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, service.TaskTypeDossier, task.Type())

	require.NoError(t, w.ProcessTask(context.Background(), task))
	require.Len(t, runner.ran, 1)
	assert.Equal(t, model.DossierTask{JobID: "job-1", SessionID: "sess-1", Attempt: 2}, runner.ran[0])
}

func TestProcessTaskSkipsRetryOnBadPayload(t *testing.T) {
	runner := &fakeRunner{}
	w := NewDossierWorker(runner, zap.NewNop())

	err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeDossier, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeDossier, []byte(`{"sessionId":"s"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, runner.ran)
}

func TestProcessTaskReturnsRunnerError(t *testing.T) {
	boom := errors.New("redis down")
	w := NewDossierWorker(&fakeRunner{err: boom}, zap.NewNop())

	task, err := service.NewDossierTask(model.DossierTask{JobID: "job-1", SessionID: "sess-1", Attempt: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, w.ProcessTask(context.Background(), task), boom)
}

func TestRegisterRoutesDossierTasks(t *testing.T) {
	runner := &fakeRunner{}
	mux := asynq.NewServeMux()
	NewDossierWorker(runner, zap.NewNop()).Register(mux)

	task, err := service.NewDossierTask(model.DossierTask{JobID: "job-1", SessionID: "sess-1", Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Len(t, runner.ran, 1)
}
