// Package web provides the HTTP handlers that list, describe and run workflows.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultListLimit = 50

type APIHandlers struct {
	registry  *registry.Registry
	executor  *workflow.Executor
	history   history.Store
	validator *validator.Validate
}

func NewAPIHandlers(
	registry *registry.Registry,
	executor *workflow.Executor,
	history history.Store,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		registry:  registry,
		executor:  executor,
		history:   history,
		validator: validator,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows := h.registry.Workflows()

	summaries := make([]WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		summaries = append(summaries, NewWorkflowSummary(wf))
	}

	return c.JSON(fiber.Map{
		"workflows":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	wf, err := h.registry.Workflow(c.Params("name"))
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(wf.Describe())
}

// RunWorkflow runs the named workflow with the request body as trigger and
// answers once the run finished.
func (h *APIHandlers) RunWorkflow(c fiber.Ctx) error {
	wf, err := h.registry.Workflow(c.Params("name"))
	if err != nil {
		return handleRunError(c, err)
	}

	trigger := map[string]any{}

	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &trigger); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	result, err := h.executor.Run(c.Context(), wf, trigger)
	if err != nil {
		if result != nil {
			return handleFailedRun(c, result.ExecutionID, err)
		}

		return handleRunError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(NewRunResponse(result))
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	record, err := h.history.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleRunError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) ListRuns(c fiber.Ctx) error {
	req := ListRunsRequest{Limit: defaultListLimit}
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	records, err := h.history.List(c.Context(), req.Workflow, req.Limit)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        records,
		"total_count": len(records),
	})
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	historyCheck := "ok"
	healthy := true

	if checker, ok := h.history.(healthChecker); ok {
		if err := checker.HealthCheck(c.Context()); err != nil {
			historyCheck = err.Error()
			healthy = false
		}
	}

	status := "unhealthy"
	message := "stepflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if healthy {
		status = "healthy"
		message = "stepflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry": len(h.registry.Workflows()),
			"history":  historyCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
