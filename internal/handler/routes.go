package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/prospectlens/api/internal/middleware"
)

// Routes groups everything RegisterRoutes mounts under /api.
type Routes struct {
	Auth     fiber.Handler
	Limits   *middleware.RateLimiter
	Sessions *SessionHandler
	Research *ResearchHandler
	Export   *ExportHandler
}

// RegisterRoutes mounts the session API. Provider-cost routes are rate limited.
func RegisterRoutes(app *fiber.App, r Routes) {
	api := app.Group("/api", r.Auth)

	sessions := api.Group("/sessions")
	sessions.Post("/", r.Limits.CreateLimit(), r.Sessions.Create)
	sessions.Get("/:id", r.Sessions.Get)
	sessions.Get("/:id/poll", r.Sessions.Poll)

	sessions.Post("/:id/prospects", r.Limits.DiscoverLimit(), r.Research.Discover)
	sessions.Post("/:id/advantages", r.Limits.AdvantagesLimit(), r.Research.Advantages)
	sessions.Post("/:id/prospects/:key/refresh", r.Limits.DiscoverLimit(), r.Research.Refresh)
	sessions.Post("/:id/prospects/:key/plan", r.Limits.PlanLimit(), r.Research.Plan)
	sessions.Post("/:id/export", r.Limits.ExportLimit(), r.Export.Export)
}
