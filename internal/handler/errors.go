package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/prospectlens/api/internal/model"
	"github.com/prospectlens/api/internal/research"
	"github.com/prospectlens/api/pkg/response"
)

// respondError maps service errors onto the response envelope. Anything
// unrecognized is logged and reported as a generic service error.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	switch {
	case errors.Is(err, model.ErrAuthRequired):
		return response.Unauthorized(c, "Sign in to start a discovery session")
	case errors.Is(err, model.ErrAccessDenied):
		return response.Forbidden(c, "You do not have access to this session")
	case errors.Is(err, model.ErrNotFound):
		return response.NotFound(c, "Not found")
	case errors.Is(err, model.ErrProviderRateLimited):
		return response.ProviderRateLimited(c, research.UserMessage(err))
	case errors.Is(err, model.ErrProviderQuotaExhausted):
		return response.ProviderQuotaExhausted(c, research.UserMessage(err))
	case errors.Is(err, model.ErrProviderUnavailable):
		return response.ProviderUnavailable(c, research.UserMessage(err))
	case errors.Is(err, model.ErrStorageUnavailable):
		return response.StorageUnavailable(c, "Export storage is not configured")
	}
	logger.Error("Request failed",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return response.ServiceError(c, "Internal error")
}

// bindBody decodes an optional JSON body into req and validates it. An empty
// body leaves req at its zero value. A non-empty message means the request is
// invalid.
func bindBody(c *fiber.Ctx, v *validator.Validate, req interface{}) (string, interface{}) {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return "Invalid request body", nil
		}
	}
	if err := v.Struct(req); err != nil {
		return "Validation failed", formatValidationErrors(err)
	}
	return "", nil
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		for _, e := range validationErrors {
			fields[e.Namespace()] = e.Tag()
		}
		return fields
	}
	return nil
}
