package handler

import (
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/middleware"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/service"
	"github.com/prospectlens/api/pkg/response"
)

// ResearchHandler serves the provider-backed session operations.
type ResearchHandler struct {
	discovery  *service.DiscoveryService
	advantages *service.AdvantageService
	dossiers   *service.DossierStep
	plans      *service.AccountPlanService
	validator  *validator.Validate
	logger     *zap.Logger
}

func NewResearchHandler(discovery *service.DiscoveryService, advantages *service.AdvantageService, dossiers *service.DossierStep, plans *service.AccountPlanService, v *validator.Validate, logger *zap.Logger) *ResearchHandler {
	return &ResearchHandler{
		discovery:  discovery,
		advantages: advantages,
		dossiers:   dossiers,
		plans:      plans,
		validator:  v,
		logger:     logger,
	}
}

// Discover handles POST /api/sessions/:id/prospects
// @Summary      Discover prospects
// @Description  Finds one page of prospects and queues a dossier job for each new one
// @Tags         Research
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        request body model.DiscoverProspectsRequest false "Discovery options"
// @Success      200 {object} model.DiscoverProspectsResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      402 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/sessions/{id}/prospects [post]
func (h *ResearchHandler) Discover(c *fiber.Ctx) error {
	var req model.DiscoverProspectsRequest
	if msg, details := bindBody(c, h.validator, &req); msg != "" {
		return response.ValidationError(c, msg, details)
	}

	result, err := h.discovery.DiscoverProspects(c.Context(), c.Params("id"), middleware.CallerID(c), &req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.OK(c, result)
}

// Advantages handles POST /api/sessions/:id/advantages
// @Summary      Research competitive advantages
// @Tags         Research
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        request body model.ResearchAdvantagesRequest false "Brief options"
// @Success      200 {object} model.ResearchAdvantagesResponse
// @Success      202 {object} model.ResearchAdvantagesResponse
// @Router       /api/sessions/{id}/advantages [post]
func (h *ResearchHandler) Advantages(c *fiber.Ctx) error {
	var req model.ResearchAdvantagesRequest
	if msg, details := bindBody(c, h.validator, &req); msg != "" {
		return response.ValidationError(c, msg, details)
	}

	result, err := h.advantages.ResearchAdvantages(c.Context(), c.Params("id"), middleware.CallerID(c), &req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if result.Job != nil {
		return response.Accepted(c, result)
	}
	return response.OK(c, result)
}

// Refresh handles POST /api/sessions/:id/prospects/:key/refresh
// @Summary      Re-research a prospect
// @Description  Queues a new dossier job unless one is already active
// @Tags         Research
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        key path string true "Prospect key"
// @Success      202 {object} model.RefreshProspectResponse
// @Router       /api/sessions/{id}/prospects/{key}/refresh [post]
func (h *ResearchHandler) Refresh(c *fiber.Ctx) error {
	result, err := h.dossiers.ForceRefresh(c.Context(), c.Params("id"), prospectKeyParam(c), middleware.CallerID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.Accepted(c, result)
}

// Plan handles POST /api/sessions/:id/prospects/:key/plan
// @Summary      Generate an account plan
// @Tags         Research
// @Accept       json
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        key path string true "Prospect key"
// @Param        request body model.AccountPlanRequest false "Rep notes"
// @Success      200 {object} model.AccountPlanResponse
// @Router       /api/sessions/{id}/prospects/{key}/plan [post]
func (h *ResearchHandler) Plan(c *fiber.Ctx) error {
	var req model.AccountPlanRequest
	if msg, details := bindBody(c, h.validator, &req); msg != "" {
		return response.ValidationError(c, msg, details)
	}

	result, err := h.plans.GenerateAccountPlan(c.Context(), c.Params("id"), prospectKeyParam(c), middleware.CallerID(c), &req)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.OK(c, result)
}

// prospectKeyParam returns the :key route param decoded. Keys keep non-ASCII
// letters, which clients send percent-encoded.
func prospectKeyParam(c *fiber.Ctx) string {
	raw := c.Params("key")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}
