package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postwise/postwise/internal/queue"
)

type QueueHandler struct {
	q *queue.Manager
}

func NewQueueHandler(q *queue.Manager) *QueueHandler {
	return &QueueHandler{q: q}
}

func (h *QueueHandler) QueueStats(c *fiber.Ctx) error {
	stats, err := h.q.Stats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read queue stats",
		})
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}
