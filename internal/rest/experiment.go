package rest

import (
	"context"
	"net/http"

	"omnisearch/domain"

	"github.com/AMFarhan21/fres"
	"github.com/labstack/echo/v4"
)

type (
	ExperimentHandler struct {
		assignmentService AssignmentService
	}

	AssignmentService interface {
		Assign(ctx context.Context, userID string) domain.UserAssignment
		GetAssignment(ctx context.Context, userID string) (*domain.UserAssignment, error)
	}
)

func NewExperimentHandler(svc AssignmentService) *ExperimentHandler {
	return &ExperimentHandler{
		assignmentService: svc,
	}
}

// GET /api/v1/experiment/assignment/:user_id
// Creates the assignment if the user has none yet; assignment is sticky.
func (h *ExperimentHandler) Assignment(c echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "user_id is required"})
	}

	assignment := h.assignmentService.Assign(c.Request().Context(), userID)

	return c.JSON(http.StatusOK, fres.Response.StatusOK(assignment))
}
