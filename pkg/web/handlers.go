// Package web provides HTTP handlers and REST API endpoints for template and
// execution management.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/taskhive/flowengine/pkg/persistence"
	"github.com/taskhive/flowengine/pkg/services"
	"github.com/taskhive/flowengine/pkg/workflow"
)

type APIHandlers struct {
	templateService  *services.Template
	executionService *services.Execution
	validator        *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	executionService *services.Execution,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService:  templateService,
		executionService: executionService,
		validator:        validator,
	}
}

// RegisterRoutes mounts the API on the fiber app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/livez", h.Live)
	app.Get("/readyz", h.HealthCheck)

	app.Post("/templates", h.CreateTemplate)
	app.Get("/templates", h.GetTemplates)
	app.Get("/templates/:id", h.GetTemplate)
	app.Delete("/templates/:id", h.DeleteTemplate)
	app.Post("/templates/:id/executions", h.CreateExecution)
	app.Get("/templates/:id/executions", h.GetExecutions)

	app.Get("/executions/:id", h.GetExecution)
	app.Post("/executions/:id/start", h.StartExecution)
	app.Post("/executions/:id/pause", h.PauseExecution)
	app.Post("/executions/:id/resume", h.ResumeExecution)
	app.Post("/executions/:id/cancel", h.CancelExecution)
	app.Post("/executions/:id/steps/:nodeId/approval", h.RecordApproval)
}

func (h *APIHandlers) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowengine API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowengine API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Create(c.Context(), req.toModel())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	templates, err := h.templateService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	err := h.templateService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateExecution(c fiber.Ctx) error {
	templateID := c.Params("id")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	var req CreateExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	execution, err := h.executionService.Create(c.Context(), templateID, req.TriggeredBy, req.Variables)
	if err != nil {
		return handleServiceError(c, err)
	}

	outcome := workflow.StartOutcome("")

	if req.Start {
		outcome, err = h.executionService.Start(c.Context(), execution.ID)
		if err != nil {
			return handleServiceError(c, err)
		}
	}

	response := fiber.Map{"execution": execution}
	if outcome != "" {
		response["outcome"] = outcome
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	templateID := c.Params("id")
	if templateID == "" {
		return badRequest(c, "Template ID is required")
	}

	executions, err := h.executionService.ListByTemplate(c.Context(), templateID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"executions": executions})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	status, err := h.executionService.Status(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(status)
}

func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	outcome, err := h.executionService.Start(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	httpStatus := fiber.StatusOK
	if outcome == workflow.StartOutcomeQueued {
		httpStatus = fiber.StatusAccepted
	}

	return c.Status(httpStatus).JSON(fiber.Map{"outcome": outcome})
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Pause(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "paused"})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	outcome, err := h.executionService.Resume(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	httpStatus := fiber.StatusOK
	if outcome == workflow.StartOutcomeQueued {
		httpStatus = fiber.StatusAccepted
	}

	return c.Status(httpStatus).JSON(fiber.Map{"outcome": outcome})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := h.executionService.Cancel(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func (h *APIHandlers) RecordApproval(c fiber.Ctx) error {
	id := c.Params("id")
	nodeID := c.Params("nodeId")

	if id == "" || nodeID == "" {
		return badRequest(c, "Execution ID and node ID are required")
	}

	var req ApprovalRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := h.executionService.RecordApproval(c.Context(), id, nodeID, req.ApproverID, req.Decision, req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"decision": req.Decision})
}
