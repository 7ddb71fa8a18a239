package app

import (
	"zetaconvert/internal/handlers"
	"zetaconvert/internal/pool"
	u "zetaconvert/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		// Exactly the upload ceiling: fasthttp stops reading past it, and
		// the dispatcher answers declared oversizes before the body is read.
		BodyLimit: int(cfg.Limits.MaxUploadBytes),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client) {
	workers := pool.New(cfg.Convert.Workers)
	workers.Start()
	app.Hooks().OnShutdown(func() error {
		workers.Stop()
		return nil
	})

	svc := handlers.NewConvertService(cfg, redis, workers)

	app.Post("/api/convert", svc.HandleConvert)
	app.Post("/api/catalog/reload", svc.HandleCatalogReload)
	app.Get("/api/stats", svc.HandleStats)
	app.Get("/formats.json", handlers.HandleFormats)

	app.Get("/v1/monitor", monitor.New())
}
