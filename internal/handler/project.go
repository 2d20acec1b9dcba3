package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cinder/storyboard/internal/middleware"
	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/service"
	"github.com/cinder/storyboard/pkg/response"
)

type ProjectHandler struct {
	projects    *service.ProjectService
	storyboards *service.StoryboardService
	validator   *validator.Validate
}

func NewProjectHandler(projects *service.ProjectService, storyboards *service.StoryboardService, v *validator.Validate) *ProjectHandler {
	return &ProjectHandler{
		projects:    projects,
		storyboards: storyboards,
		validator:   v,
	}
}

// Save handles POST /api/projects
// @Summary      Save the current storyboard
// @Tags         Projects
// @Accept       json
// @Produce      json
// @Param        request body model.ProjectSaveRequest true "Save request"
// @Success      202 {object} model.ProjectSaveResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects [post]
func (h *ProjectHandler) Save(c *fiber.Ctx) error {
	var req model.ProjectSaveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	userID := middleware.GetUserID(c)
	project, err := h.projects.Save(c.Context(), userID, req.Title, h.storyboards.Snapshot(userID))
	if err != nil {
		if errors.Is(err, service.ErrNothingToSave) {
			return response.Conflict(c, "Generate a storyboard before saving")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.ProjectSaveResponse{
		ProjectID: project.ID,
		Status:    project.Status,
		CreatedAt: project.CreatedAt,
	})
}

// List handles GET /api/projects
// @Summary      List saved projects
// @Tags         Projects
// @Produce      json
// @Success      200 {array} model.ProjectSummary
// @Security     BearerAuth
// @Router       /api/projects [get]
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	projects, err := h.projects.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, fiber.Map{"projects": projects})
}

// Get handles GET /api/projects/:projectId
// @Summary      Get a saved project
// @Tags         Projects
// @Produce      json
// @Param        projectId path string true "Project ID"
// @Success      200 {object} model.Project
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{projectId} [get]
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	project, err := h.projects.Get(c.Context(), middleware.GetUserID(c), c.Params("projectId"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, project)
}

// Delete handles DELETE /api/projects/:projectId
// @Summary      Delete a saved project
// @Tags         Projects
// @Param        projectId path string true "Project ID"
// @Success      204
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/projects/{projectId} [delete]
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	err := h.projects.Delete(c.Context(), middleware.GetUserID(c), c.Params("projectId"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
