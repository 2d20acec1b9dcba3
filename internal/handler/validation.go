package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/cinder/storyboard/internal/storyboard"
	"github.com/cinder/storyboard/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// storyboardError maps orchestrator rejections to HTTP responses
func storyboardError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, storyboard.ErrInvalidPhase),
		errors.Is(err, storyboard.ErrFrameBusy),
		errors.Is(err, storyboard.ErrClosed):
		return response.Conflict(c, err.Error())
	case errors.Is(err, storyboard.ErrIndexOutOfRange):
		return response.NotFound(c, err.Error())
	case storyboard.IsValidationError(err):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
