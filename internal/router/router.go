package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/metastudy/metastudy-api/internal/config"
	"github.com/metastudy/metastudy-api/internal/handler"
	"github.com/metastudy/metastudy-api/internal/middleware"
	"github.com/metastudy/metastudy-api/internal/models"
	"github.com/metastudy/metastudy-api/internal/observability"
	"github.com/metastudy/metastudy-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UserHandler       *handler.UserHandler
	ClassroomHandler  *handler.ClassroomHandler
	MaterialHandler   *handler.MaterialHandler
	AssignableHandler *handler.AssignableHandler
	SubmissionHandler *handler.SubmissionHandler
	DiscussionHandler *handler.DiscussionHandler
	MeetingHandler    *handler.MeetingHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UserHandler != nil {
		auth := api.Group("/auth", middleware.RateLimit("auth", 20, time.Minute))
		deps.UserHandler.RegisterPublic(auth)

		users := api.Group("/users", jwtMiddleware)
		deps.UserHandler.RegisterProtected(users)
	}

	if deps.ClassroomHandler != nil {
		classrooms := api.Group("/classrooms", jwtMiddleware)
		deps.ClassroomHandler.Register(classrooms)
	}

	if deps.MaterialHandler != nil {
		materials := api.Group("/materials", jwtMiddleware)
		deps.MaterialHandler.Register(materials)
	}

	// One group per parent kind; the shared handlers receive the kind at
	// registration time.
	if deps.AssignableHandler != nil {
		groups := map[string]string{
			models.KindAssignment:   "/assignments",
			models.KindGroup:        "/groups",
			models.KindPresentation: "/presentations",
			models.KindTest:         "/tests",
		}
		for _, kind := range service.Kinds() {
			group := api.Group(groups[kind], jwtMiddleware)
			deps.AssignableHandler.Register(group, kind)

			if deps.SubmissionHandler != nil {
				deps.SubmissionHandler.RegisterNested(group, kind)
			}
		}
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.RegisterRecords(submissions)
	}

	if deps.DiscussionHandler != nil {
		discussions := api.Group("/discussions", jwtMiddleware)
		deps.DiscussionHandler.Register(discussions)
	}

	if deps.MeetingHandler != nil {
		meetings := api.Group("/meetings", jwtMiddleware)
		deps.MeetingHandler.Register(meetings)
	}
}
