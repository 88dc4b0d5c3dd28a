package web

import (
	"github.com/dukex/stepflow/pkg/history"
	"github.com/dukex/stepflow/pkg/registry"
	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// runProblem is the problem body of a run that started and then failed.
type runProblem struct {
	*problems.DefaultProblem
	ExecutionID string `json:"execution_id,omitempty"`
}

// handleRunError maps a run failure to a problem response.
func handleRunError(c fiber.Ctx, err error) error {
	status, problem := runErrorProblem(c, err)

	return c.Status(status).JSON(problem)
}

// handleFailedRun is handleRunError for a run that has an execution id, so
// the caller can look the run up afterwards.
func handleFailedRun(c fiber.Ctx, executionID string, err error) error {
	status, problem := runErrorProblem(c, err)

	return c.Status(status).JSON(runProblem{DefaultProblem: problem, ExecutionID: executionID})
}

func runErrorProblem(c fiber.Ctx, err error) (int, *problems.DefaultProblem) {
	status, kind := fiber.StatusInternalServerError, "internal_error"

	switch {
	case registry.IsWorkflowNotFound(err):
		status, kind = fiber.StatusNotFound, "workflow_not_found"
	case history.IsRecordNotFound(err):
		status, kind = fiber.StatusNotFound, "run_not_found"
	case workflow.IsContractViolation(err):
		status, kind = fiber.StatusBadRequest, "validation_error"
	case workflow.IsStepTimeout(err):
		status, kind = fiber.StatusGatewayTimeout, "step_timeout"
	case workflow.IsStepExecutionError(err):
		kind = "step_failed"
	case workflow.IsOutputMappingError(err):
		kind = "output_mapping_failed"
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(err.Error())

	return status, problem
}
