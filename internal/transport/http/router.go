package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stackgate/backend/internal/config"
	"github.com/stackgate/backend/internal/core/ports"
	"github.com/stackgate/backend/internal/infrastructure/logger"
	"github.com/stackgate/backend/internal/transport/http/dto"
	"github.com/stackgate/backend/internal/transport/http/handlers"
	httpmw "github.com/stackgate/backend/internal/transport/http/middleware"
)

type RouterConfig struct {
	Engine ports.TaskEngine
	Logger *logger.Logger
	Config *config.Config
	// Gatherer backs /metrics when metrics are enabled.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	actionHandler := handlers.NewActionHandler(cfg.Engine, cfg.Logger)
	taskHandler := handlers.NewTaskHandler(cfg.Engine, cfg.Logger)
	tokenHandler := handlers.NewTokenHandler(cfg.Engine, cfg.Logger)
	notificationHandler := handlers.NewNotificationHandler(cfg.Engine, cfg.Logger)
	statusHandler := handlers.NewStatusHandler(cfg.Engine, cfg.Logger)

	if cfg.Config.Features.EnableMetrics && cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	public := publicLimiter(cfg.Config.Features)
	managers := httpmw.RequireRoles(cfg.Config.Auth.ManagerRoles...)
	admins := httpmw.RequireRoles(cfg.Config.Auth.AdminRoles...)

	api := app.Group("/v1", httpmw.Authenticate(cfg.Config))

	// Task submission
	api.Post("/actions/:task_type", public, actionHandler.CreateTask)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Get("/", managers, taskHandler.ListTasks)
	tasks.Get("/:id", managers, taskHandler.GetTask)
	tasks.Put("/:id", managers, taskHandler.UpdateTask)
	tasks.Post("/:id", admins, taskHandler.ApproveTask)
	tasks.Delete("/:id", managers, taskHandler.CancelTask)

	// Token routes
	tokens := api.Group("/tokens")
	tokens.Get("/", admins, tokenHandler.ListTokens)
	tokens.Post("/", admins, tokenHandler.ReissueToken)
	tokens.Delete("/", admins, tokenHandler.DeleteExpired)
	tokens.Get("/:token", tokenHandler.GetToken)
	tokens.Post("/:token", public, tokenHandler.RedeemToken)

	// Notification routes
	notifications := api.Group("/notifications", admins)
	notifications.Get("/", notificationHandler.ListNotifications)
	notifications.Post("/", notificationHandler.AcknowledgeMany)
	notifications.Get("/:id", notificationHandler.GetNotification)
	notifications.Post("/:id", notificationHandler.Acknowledge)

	api.Get("/status", admins, statusHandler.GetStatus)
}

func publicLimiter(f config.FeaturesConfig) fiber.Handler {
	if f.PublicRateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	window := f.PublicRateWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        f.PublicRateLimit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.Messages("rate limit exceeded"))
		},
	})
}
