package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/middleware"
	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/service"
	"github.com/prospectlens/api/pkg/response"
)

type SessionHandler struct {
	sessions  *service.SessionService
	executor  *service.Executor
	validator *validator.Validate
	logger    *zap.Logger
}

func NewSessionHandler(sessions *service.SessionService, executor *service.Executor, v *validator.Validate, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		executor:  executor,
		validator: v,
		logger:    logger,
	}
}

// Create handles POST /api/sessions
// @Summary      Create a discovery session
// @Description  Creates a session for the criteria, or returns the caller's recent session for equal criteria
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        request body model.CreateSessionRequest true "Session criteria"
// @Success      200 {object} model.CreateSessionResponse
// @Success      201 {object} model.CreateSessionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/sessions [post]
func (h *SessionHandler) Create(c *fiber.Ctx) error {
	var req model.CreateSessionRequest
	if msg, details := bindBody(c, h.validator, &req); msg != "" {
		return response.ValidationError(c, msg, details)
	}

	result, err := h.sessions.CreateSession(c.Context(), middleware.CallerID(c), req.Criteria)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	if result.IsExisting {
		return response.OK(c, result)
	}
	return response.Created(c, result)
}

// Get handles GET /api/sessions/:id
// @Summary      Get session snapshot
// @Description  Returns the current snapshot without advancing any work
// @Tags         Sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} model.Snapshot
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/sessions/{id} [get]
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	snap, err := h.sessions.GetSnapshot(c.Context(), c.Params("id"), middleware.CallerID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.OK(c, snap)
}

// Poll handles GET /api/sessions/:id/poll
// @Summary      Advance and snapshot
// @Description  Starts at most one queued or stale job, then returns the snapshot
// @Tags         Sessions
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} model.Snapshot
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/sessions/{id}/poll [get]
func (h *SessionHandler) Poll(c *fiber.Ctx) error {
	snap, err := h.executor.Advance(c.Context(), c.Params("id"), middleware.CallerID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.OK(c, snap)
}
