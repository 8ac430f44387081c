package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectlens/api/internal/client"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
)

func TestGenerateAccountPlan(t *testing.T) {
	h := newHarness(t)
	owner := strPtr("user-1")
	id := h.createSession(owner)
	h.discover(id, owner)

	resp, err := h.plans.GenerateAccountPlan(h.ctx, id, "hartford-pd-ct", owner, &model.AccountPlanRequest{RepNotes: "Met the chief at a conference"})
	require.NoError(t, err)
	assert.Equal(t, "Pilot first", resp.Plan.Summary)
	assert.Equal(t, []string{"Call"}, resp.Plan.NextSteps)
	assert.Equal(t, 0, h.completer.Calls(research.KindDossier), "plans never run queued work")

	_, err = h.plans.GenerateAccountPlan(h.ctx, id, "hartford-pd-ct", strPtr("user-2"), &model.AccountPlanRequest{})
	assert.ErrorIs(t, err, model.ErrAccessDenied)

	_, err = h.plans.GenerateAccountPlan(h.ctx, id, "nope", owner, &model.AccountPlanRequest{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGenerateAccountPlanSurfacesProviderErrors(t *testing.T) {
	h := newHarness(t)
	id := h.createSession(nil)
	h.discover(id, nil)
	h.completer.Fail(research.KindAccountPlan, &client.APIError{StatusCode: 500})

	_, err := h.plans.GenerateAccountPlan(h.ctx, id, "hartford-pd-ct", nil, &model.AccountPlanRequest{})
	assert.ErrorIs(t, err, model.ErrProviderUnavailable)
}
