package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postwise/postwise/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// statusForError translates service sentinels into HTTP statuses so handlers
// stay out of the business rules.
func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrPermissionDenied):
		return fiber.StatusForbidden
	case errors.Is(err, service.ErrPostNotFound),
		errors.Is(err, service.ErrScheduleNotFound),
		errors.Is(err, service.ErrChannelNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrAlreadyPublished),
		errors.Is(err, service.ErrNotCancellable):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := statusForError(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "Something went wrong"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
