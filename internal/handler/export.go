package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/middleware"
	"github.com/prospectlens/api/internal/service"
	"github.com/prospectlens/api/pkg/response"
)

type ExportHandler struct {
	service *service.ExportService
	logger  *zap.Logger
}

func NewExportHandler(svc *service.ExportService, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{service: svc, logger: logger}
}

// Export handles POST /api/sessions/:id/export
// @Summary      Export session snapshot
// @Description  Writes the snapshot as JSON to object storage and returns a signed download URL
// @Tags         Export
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} model.ExportResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/sessions/{id}/export [post]
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	result, err := h.service.Export(c.Context(), c.Params("id"), middleware.CallerID(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return response.OK(c, result)
}
