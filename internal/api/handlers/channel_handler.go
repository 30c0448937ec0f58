package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/postwise/postwise/internal/service"
)

type ChannelHandler struct {
	s service.ChannelService
}

func NewChannelHandler(service service.ChannelService) *ChannelHandler {
	return &ChannelHandler{s: service}
}

func (h *ChannelHandler) ListChannels(c *fiber.Ctx) error {
	brandID := c.QueryInt("brand_id", 0)
	if brandID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id is required",
		})
	}

	channels, err := h.s.List(c.Context(), int64(brandID))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(channels)
}

// TestConnection runs the provider check synchronously so the caller sees the
// live result, not the last recorded one.
func (h *ChannelHandler) TestConnection(c *fiber.Ctx) error {
	channelID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid channel id",
		})
	}

	if err := h.s.TestConnection(c.Context(), int64(channelID)); err != nil {
		if errors.Is(err, service.ErrChannelNotFound) {
			return errorJSON(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"healthy": false,
			"error":   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"healthy": true,
	})
}
