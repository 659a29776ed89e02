// Package main provides the flowengine API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/registry"
	"github.com/taskhive/flowengine/pkg/services"
	"github.com/taskhive/flowengine/pkg/web"
	"github.com/taskhive/flowengine/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	controller  *workflow.Controller
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	controller *workflow.Controller,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		controller:  controller,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence, a.registry)
	executionService := services.NewExecution(a.persistence, a.controller)

	handlers := web.NewAPIHandlers(templateService, executionService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowengine API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
