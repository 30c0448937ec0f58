package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/postwise/postwise/internal/service"
	"github.com/postwise/postwise/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.CreatePost(c.Context(), userID, &pc)
	if err != nil && post == nil {
		return errorJSON(c, err)
	}
	if err != nil {
		// post was created but a queue entry could not be placed; the
		// reconciler will pick the pending schedule up
		slog.Error("post created with degraded scheduling", "post_id", post.ID, "error", err)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"post":    transfer.NewPostResponse(post),
			"warning": "Post saved, scheduling is delayed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post": transfer.NewPostResponse(post),
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	postID := c.QueryInt("id", 0)
	if postID != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postID))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
	}

	brandID := c.QueryInt("brand_id", 0)
	if brandID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "brand_id is required",
		})
	}

	posts, err := h.s.List(c.Context(), int64(brandID))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponses(posts))
}

func (h *PostHandler) CancelSchedule(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}
	scheduleID, err := c.ParamsInt("scheduleId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid schedule id",
		})
	}

	post, err := h.s.CancelSchedule(c.Context(), userID, int64(postID), int64(scheduleID))
	if err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(transfer.NewPostResponse(post))
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	if err := h.s.Remove(c.Context(), userID, int64(postID)); err != nil {
		return errorJSON(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
