// handlers/completions.go
package handlers

import (
	"io"
	"strings"

	"habit-league/middleware"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
)

const maxPhotoBytes = 10 << 20

func SetupCompletionRoutes(r fiber.Router, svc Services) {
	// multipart: habit_id + photo
	r.Post("/completions", func(c *fiber.Ctx) error {
		habitID := c.FormValue("habit_id")
		if habitID == "" {
			return badRequest(c, "habit_id is required")
		}
		fileHeader, err := c.FormFile("photo")
		if err != nil {
			return badRequest(c, "photo is required")
		}
		if fileHeader.Size > maxPhotoBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "photo is too large"})
		}
		contentType := fileHeader.Header.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, "image/") {
			return badRequest(c, "photo must be an image")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return badRequest(c, "failed to read photo")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
		if err != nil {
			return badRequest(c, "failed to read photo")
		}

		completion, err := svc.Completions.Submit(c.UserContext(), *middleware.MemberFrom(c), habitID, services.Photo{
			Data:        data,
			ContentType: contentType,
			Filename:    fileHeader.Filename,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(completion)
	})

	r.Get("/completions/today", func(c *fiber.Ctx) error {
		today, err := svc.Dashboard.TodayCompletions(c.UserContext(), middleware.MemberFrom(c).ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"completions": today})
	})

	r.Get("/completions/pending", func(c *fiber.Ctx) error {
		pending, err := svc.Completions.ListPending(c.UserContext(), *middleware.MemberFrom(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"completions": pending})
	})

	r.Post("/completions/:id/validate", func(c *fiber.Ctx) error {
		var body struct {
			Approve *bool `json:"approve"`
		}
		if err := c.BodyParser(&body); err != nil || body.Approve == nil {
			return badRequest(c, "approve must be true or false")
		}
		completion, err := svc.Completions.Validate(c.UserContext(), *middleware.MemberFrom(c), c.Params("id"), *body.Approve)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(completion)
	})

	r.Get("/activity", func(c *fiber.Ctx) error {
		items, err := svc.Completions.Activity(c.UserContext(), *middleware.MemberFrom(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"items": items})
	})
}
