package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cinder/storyboard/internal/middleware"
	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/service"
	"github.com/cinder/storyboard/pkg/response"
)

type StoryboardHandler struct {
	storyboards *service.StoryboardService
	projects    *service.ProjectService
	validator   *validator.Validate
}

func NewStoryboardHandler(storyboards *service.StoryboardService, projects *service.ProjectService, v *validator.Validate) *StoryboardHandler {
	return &StoryboardHandler{
		storyboards: storyboards,
		projects:    projects,
		validator:   v,
	}
}

// Get handles GET /api/storyboard
// @Summary      Current storyboard
// @Tags         Storyboard
// @Produce      json
// @Success      200 {object} model.Snapshot
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/storyboard [get]
func (h *StoryboardHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.storyboards.Snapshot(middleware.GetUserID(c)))
}

// Generate handles POST /api/storyboard/generate
// @Summary      Generate a storyboard
// @Description  Starts generation and returns the Loading snapshot. Frames arrive over /ws/storyboard.
// @Tags         Storyboard
// @Accept       json
// @Produce      json
// @Param        request body model.StoryboardGenerateRequest true "Generate request"
// @Success      202 {object} model.Snapshot
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/storyboard/generate [post]
func (h *StoryboardHandler) Generate(c *fiber.Ctx) error {
	var req model.StoryboardGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.Style = model.Style(strings.ToLower(strings.TrimSpace(string(req.Style))))

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	snap, err := h.storyboards.Generate(middleware.GetUserID(c), &req)
	if err != nil {
		return storyboardError(c, err)
	}

	return response.Accepted(c, snap)
}

// Animate handles POST /api/storyboard/frames/:index/animate
// @Summary      Animate a frame
// @Tags         Storyboard
// @Produce      json
// @Param        index path int true "Frame index"
// @Success      202 {object} model.Snapshot
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/storyboard/frames/{index}/animate [post]
func (h *StoryboardHandler) Animate(c *fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return response.ValidationError(c, "Frame index must be an integer", nil)
	}

	snap, err := h.storyboards.Animate(middleware.GetUserID(c), index)
	if err != nil {
		return storyboardError(c, err)
	}

	return response.Accepted(c, snap)
}

// Reset handles POST /api/storyboard/reset
// @Summary      Discard the storyboard
// @Tags         Storyboard
// @Produce      json
// @Success      200 {object} model.Snapshot
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/storyboard/reset [post]
func (h *StoryboardHandler) Reset(c *fiber.Ctx) error {
	snap, err := h.storyboards.Reset(middleware.GetUserID(c))
	if err != nil {
		return storyboardError(c, err)
	}
	return response.OK(c, snap)
}

// Restore handles POST /api/storyboard/restore/:projectId
// @Summary      Reopen a saved project
// @Tags         Storyboard
// @Produce      json
// @Param        projectId path string true "Project ID"
// @Success      200 {object} model.Snapshot
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/storyboard/restore/{projectId} [post]
func (h *StoryboardHandler) Restore(c *fiber.Ctx) error {
	userID := middleware.GetUserID(c)

	project, err := h.projects.Get(c.Context(), userID, c.Params("projectId"))
	if err != nil {
		if errors.Is(err, service.ErrProjectNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}

	snap, err := h.storyboards.Restore(userID, project)
	if err != nil {
		return storyboardError(c, err)
	}
	return response.OK(c, snap)
}

// EndSession handles DELETE /api/storyboard/session
// @Summary      Tear the storyboard session down
// @Tags         Storyboard
// @Success      204
// @Security     BearerAuth
// @Router       /api/storyboard/session [delete]
func (h *StoryboardHandler) EndSession(c *fiber.Ctx) error {
	h.storyboards.EndSession(middleware.GetUserID(c))
	return response.NoContent(c)
}
