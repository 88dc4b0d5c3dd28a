package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/web"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	registry *registry.Registry
	executor *workflow.Executor
	history  history.Store
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	registry *registry.Registry,
	executor *workflow.Executor,
	history history.Store,
) *API {
	return &API{
		logger:   logger,
		registry: registry,
		executor: executor,
		history:  history,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.registry, a.executor, a.history, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("stepflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:name", handlers.GetWorkflow)
	w.Post("/:name/runs", handlers.RunWorkflow)

	r := app.Group("/runs")
	r.Get("/", handlers.ListRuns)
	r.Get("/:id", handlers.GetRun)

	app.Get("/health", handlers.HealthCheck)

	return app
}

// Start serves the API on port until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting API", "port", port)

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
